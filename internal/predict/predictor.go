package predict

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// DefaultMaxDepth bounds a salt search when no depth is configured.
const DefaultMaxDepth uint64 = 1_000_000

// ctxCheckInterval is how many candidates are tried between context checks.
const ctxCheckInterval = 4096

var (
	ErrSaltExhausted = errors.New("salt search exhausted")
	ErrInvalidParams = errors.New("invalid asset params")
)

// DefaultAssetInitCode stands in for the asset creation code on the in-process ledger.
// Live deployments configure the compiled creation code instead.
var DefaultAssetInitCode = []byte("launchpad/asset/v1")

// CodeChecker reports whether an address already carries code.
type CodeChecker interface {
	HasCode(ctx context.Context, addr common.Address) (bool, error)
}

// Params are the asset parameters that feed the deployment address.
type Params struct {
	Creator common.Address
	Name    string
	Symbol  string
	Supply  *big.Int
}

// Config configures a Predictor.
type Config struct {
	// Factory is the deploying contract (the launch orchestrator).
	Factory common.Address
	// Reserve is the paired reserve asset; predicted addresses must sort below it.
	Reserve    common.Address
	InitCode   []byte
	StartIndex uint64
	MaxDepth   uint64
}

// Result is the outcome of a successful salt search.
type Result struct {
	Salt     [32]byte
	Index    uint64
	Address  common.Address
	Attempts uint64
}

// Predictor computes deployment addresses and searches for usable salts.
type Predictor struct {
	cfg    Config
	codes  CodeChecker
	logger *zap.Logger
}

// New builds a Predictor. codes may be nil, in which case no address is considered
// occupied.
func New(cfg Config, codes CodeChecker, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if len(cfg.InitCode) == 0 {
		cfg.InitCode = DefaultAssetInitCode
	}
	return &Predictor{cfg: cfg, codes: codes, logger: logger}
}

// SaltFromIndex encodes a search index as a 32-byte big-endian salt.
func SaltFromIndex(index uint64) [32]byte {
	var salt [32]byte
	binary.BigEndian.PutUint64(salt[24:], index)
	return salt
}

// DeriveSalt mixes the creator into the raw salt: keccak256(abi.encode(creator, salt)).
// Two creators using the same raw salt never collide.
func DeriveSalt(creator common.Address, salt [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(common.LeftPadBytes(creator.Bytes(), 32), salt[:]))
	return out
}

// InitCodeHash returns keccak256(initCode ++ abi.encode(name, symbol, supply, creator)).
func InitCodeHash(initCode []byte, params Params) ([]byte, error) {
	if params.Supply == nil || params.Supply.Sign() < 0 {
		return nil, fmt.Errorf("%w: supply must be non-negative", ErrInvalidParams)
	}
	parsed, err := AssetConstructorABI()
	if err != nil {
		return nil, fmt.Errorf("parse asset abi: %w", err)
	}
	args, err := parsed.Pack("", params.Name, params.Symbol, params.Supply, params.Creator)
	if err != nil {
		return nil, fmt.Errorf("pack constructor args: %w", err)
	}
	code := make([]byte, 0, len(initCode)+len(args))
	code = append(code, initCode...)
	code = append(code, args...)
	return crypto.Keccak256(code), nil
}

// ComputeAddress derives the address a factory deploys the asset to for a raw salt.
func ComputeAddress(factory common.Address, initCode []byte, params Params, salt [32]byte) (common.Address, error) {
	hash, err := InitCodeHash(initCode, params)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.CreateAddress2(factory, DeriveSalt(params.Creator, salt), hash), nil
}

// Predict returns the deployment address for params and a raw salt.
func (p *Predictor) Predict(params Params, salt [32]byte) (common.Address, error) {
	return ComputeAddress(p.cfg.Factory, p.cfg.InitCode, params, salt)
}

// GenerateSalt scans salts from the configured start index and returns the first one
// whose predicted address sorts below the reserve asset and carries no code. The
// search never mutates state; it stops after MaxDepth candidates with ErrSaltExhausted.
func (p *Predictor) GenerateSalt(ctx context.Context, params Params) (Result, error) {
	hash, err := InitCodeHash(p.cfg.InitCode, params)
	if err != nil {
		return Result{}, err
	}

	start := p.cfg.StartIndex
	var attempts uint64
	for attempts < p.cfg.MaxDepth {
		if attempts%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}

		index := start + attempts
		attempts++
		if index < start {
			break
		}

		salt := SaltFromIndex(index)
		addr := crypto.CreateAddress2(p.cfg.Factory, DeriveSalt(params.Creator, salt), hash)
		if !Less(addr, p.cfg.Reserve) {
			continue
		}

		if p.codes != nil {
			occupied, err := p.codes.HasCode(ctx, addr)
			if err != nil {
				return Result{}, fmt.Errorf("code lookup %s: %w", addr.Hex(), err)
			}
			if occupied {
				p.logger.Debug("salt address occupied", zap.Uint64("index", index), zap.String("address", addr.Hex()))
				continue
			}
		}

		p.logger.Debug("salt found",
			zap.Uint64("index", index),
			zap.Uint64("attempts", attempts),
			zap.String("address", addr.Hex()),
		)
		return Result{Salt: salt, Index: index, Address: addr, Attempts: attempts}, nil
	}

	return Result{}, fmt.Errorf("%w: no salt in [%d, %d) for %s", ErrSaltExhausted, start, start+attempts, params.Symbol)
}

// Less reports whether a sorts strictly before b as a 160-bit unsigned integer.
func Less(a, b common.Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}
