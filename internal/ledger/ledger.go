package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	ErrCodeExists            = errors.New("code already deployed at address")
	ErrUnknownToken          = errors.New("unknown token")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroTransfer          = errors.New("zero value transfer rejected")
	ErrNotMintable           = errors.New("token is not mintable")
	ErrInvalidSnapshot       = errors.New("invalid snapshot id")
	ErrNegativeAmount        = errors.New("negative amount")
)

// ReceiveHook runs after a token credit to the hooked address. Returning an error
// fails the transfer that triggered it.
type ReceiveHook func(token, from common.Address, amount *big.Int) error

// Options configures a new Ledger.
type Options struct {
	ChainID   uint64
	StartTime uint64
	Logger    *zap.Logger
}

// Ledger is an in-process host ledger: token balances and allowances, the set of
// addresses carrying code, a clock and an event log. Every mutation is journaled so a
// snapshot can be reverted, which is how a call becomes one atomic unit of work.
//
// Components never lock the ledger; top-level callers that share a Ledger between
// goroutines go through Call, which serializes them the way a chain serializes
// transactions.
type Ledger struct {
	mu sync.Mutex

	chainID uint64
	now     uint64
	block   uint64
	txIndex uint

	tokens     map[common.Address]*Token
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
	code       map[common.Address]struct{}
	hooks      map[common.Address]ReceiveHook
	logs       []types.Log
	blockTimes map[uint64]uint64

	journal []func()
	logger  *zap.Logger
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// New builds an empty ledger.
func New(opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.StartTime
	if now == 0 {
		now = uint64(time.Now().Unix())
	}
	return &Ledger{
		chainID:    opts.ChainID,
		now:        now,
		block:      1,
		tokens:     make(map[common.Address]*Token),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
		code:       make(map[common.Address]struct{}),
		hooks:      make(map[common.Address]ReceiveHook),
		blockTimes: make(map[uint64]uint64),
		logger:     logger,
	}
}

// ChainID returns the configured chain id.
func (l *Ledger) ChainID() uint64 {
	return l.chainID
}

// Now returns the ledger time in unix seconds.
func (l *Ledger) Now() uint64 {
	return l.now
}

// BlockNumber returns the block the next log will be stamped with.
func (l *Ledger) BlockNumber() uint64 {
	return l.block
}

// SetTime moves the ledger clock. The clock is not journaled.
func (l *Ledger) SetTime(ts uint64) {
	l.now = ts
}

// Advance moves the ledger clock forward by d.
func (l *Ledger) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	l.now += uint64(d / time.Second)
}

// Call runs fn as one serialized, atomic top-level call: it holds the ledger mutex,
// reverts every effect of fn when it returns an error and otherwise seals the block.
func (l *Ledger) Call(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.Snapshot()
	if err := fn(); err != nil {
		if revertErr := l.RevertToSnapshot(snap); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		return err
	}
	l.journal = l.journal[:0]
	l.blockTimes[l.block] = l.now
	l.block++
	l.txIndex = 0
	return nil
}

// Snapshot returns an id that RevertToSnapshot can roll back to.
func (l *Ledger) Snapshot() int {
	return len(l.journal)
}

// RevertToSnapshot undoes every journaled change made after the snapshot was taken.
func (l *Ledger) RevertToSnapshot(id int) error {
	if id < 0 || id > len(l.journal) {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:id]
	return nil
}

// OnRevert journals an undo action for state kept outside the ledger, so collaborators
// built on top of it (markets, registries) revert together with balances.
func (l *Ledger) OnRevert(undo func()) {
	l.journal = append(l.journal, undo)
}

// HasCode reports whether addr carries code.
func (l *Ledger) HasCode(_ context.Context, addr common.Address) (bool, error) {
	_, ok := l.code[addr]
	return ok, nil
}

// DeployCode marks addr as a contract.
func (l *Ledger) DeployCode(addr common.Address) error {
	if _, ok := l.code[addr]; ok {
		return fmt.Errorf("%w: %s", ErrCodeExists, addr.Hex())
	}
	l.code[addr] = struct{}{}
	l.OnRevert(func() { delete(l.code, addr) })
	return nil
}

// SetReceiveHook installs a hook called after every token credit to addr. Passing nil
// removes it. Hooks are configuration and are not journaled.
func (l *Ledger) SetReceiveHook(addr common.Address, hook ReceiveHook) {
	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

// Emit appends a log stamped with the current block and transaction position.
func (l *Ledger) Emit(log types.Log) {
	log.BlockNumber = l.block
	log.TxIndex = l.txIndex
	log.TxHash = l.txHash()
	log.BlockHash = l.blockHash()
	log.Index = uint(len(l.logs))
	l.logs = append(l.logs, log)
	n := len(l.logs) - 1
	l.OnRevert(func() { l.logs = l.logs[:n] })
}

// Logs returns a copy of every emitted log.
func (l *Ledger) Logs() []types.Log {
	out := make([]types.Log, len(l.logs))
	copy(out, l.logs)
	return out
}

// BlockTime returns the time a block was sealed at, or the current clock for the open
// block.
func (l *Ledger) BlockTime(number uint64) uint64 {
	if ts, ok := l.blockTimes[number]; ok {
		return ts
	}
	return l.now
}

func (l *Ledger) txHash() common.Hash {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], l.chainID)
	binary.BigEndian.PutUint64(buf[8:16], l.block)
	binary.BigEndian.PutUint64(buf[16:24], uint64(l.txIndex))
	return crypto.Keccak256Hash([]byte("tx"), buf[:])
}

func (l *Ledger) blockHash() common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], l.chainID)
	binary.BigEndian.PutUint64(buf[8:16], l.block)
	return crypto.Keccak256Hash([]byte("block"), buf[:])
}
