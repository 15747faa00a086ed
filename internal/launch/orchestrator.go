package launch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad/internal/events"
	"launchpad/internal/ledger"
	"launchpad/internal/market"
	"launchpad/internal/predict"
	"launchpad/internal/pricing"
)

// AssetDecimals is the decimals of every launched asset.
const AssetDecimals = 18

var (
	ErrInvalidTick                = errors.New("invalid tick")
	ErrAllocationExceedsSupply    = errors.New("allocation exceeds supply")
	ErrInsufficientPayment        = errors.New("insufficient payment")
	ErrAssetCreationFailed        = errors.New("asset creation failed")
	ErrAddressOrderingViolation   = errors.New("address ordering violation")
	ErrMarketCreationFailed       = errors.New("market creation failed")
	ErrMarketInitializationFailed = errors.New("market initialization failed")
	ErrPositionMintFailed         = errors.New("position mint failed")
	ErrLockFailed                 = errors.New("position lock failed")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrInvalidFeeCut              = errors.New("fee cut above 1000")
	ErrReentrantCall              = ledger.ErrReentrantCall
)

// Locker is the part of the lock registry a launch uses.
type Locker interface {
	Address() common.Address
	InitializePosition(ctx context.Context, caller common.Address, id uint64, owner common.Address, unlockTime uint64, feeCut uint16) error
}

// Config places the orchestrator on the ledger and sets its launch defaults.
type Config struct {
	Address common.Address
	Admin   common.Address
	// Reserve is the paired reserve asset; every launched asset must sort below it.
	Reserve       common.Address
	AssetInitCode []byte
	LockDuration  time.Duration
	FeeCut        uint16
	LaunchFee     *big.Int
}

// Deps are the collaborators a launch drives.
type Deps struct {
	Ledger    *ledger.Ledger
	Factory   market.PoolFactory
	Positions market.PositionManager
	Router    market.SwapRouter
	Locker    Locker
}

// Request is one launch call.
type Request struct {
	Caller          common.Address
	Name            string
	Symbol          string
	Supply          *big.Int
	Salt            [32]byte
	FeeTier         uint32
	InitialTick     int32
	Recipient       common.Address
	RecipientAmount *big.Int
	// LockOwner receives the lock rights; the caller when zero.
	LockOwner common.Address
	// Value is the reserve amount attached to the call. Anything above the launch fee
	// buys the new asset for the caller.
	Value        *big.Int
	MinAmountOut *big.Int
}

// Result describes a completed launch.
type Result struct {
	Asset        common.Address
	PositionID   uint64
	Pool         common.Address
	Tick         int32
	LPAmount     *big.Int
	Liquidity    *big.Int
	Amount0      *big.Int
	Amount1      *big.Int
	UnlockTime   uint64
	BoughtAmount *big.Int
	// SwapErr is set when the buy-swap failed and the remainder was refunded.
	SwapErr error
}

// Orchestrator runs launches.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	deployments map[common.Address][]common.Address
	guard       ledger.Guard
}

// New deploys an orchestrator at cfg.Address.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FeeCut > 1000 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeCut, cfg.FeeCut)
	}
	if len(cfg.AssetInitCode) == 0 {
		cfg.AssetInitCode = predict.DefaultAssetInitCode
	}
	if cfg.LaunchFee == nil {
		cfg.LaunchFee = new(big.Int)
	}
	if err := deps.Ledger.DeployCode(cfg.Address); err != nil {
		return nil, fmt.Errorf("deploy orchestrator: %w", err)
	}
	return &Orchestrator{
		cfg:         cfg,
		deps:        deps,
		logger:      logger,
		deployments: make(map[common.Address][]common.Address),
	}, nil
}

func (o *Orchestrator) Address() common.Address {
	return o.cfg.Address
}

// PredictAddress returns where a launch with these parameters deploys its asset.
func (o *Orchestrator) PredictAddress(params predict.Params, salt [32]byte) (common.Address, error) {
	return predict.ComputeAddress(o.cfg.Address, o.cfg.AssetInitCode, params, salt)
}

// Predictor returns a salt miner bound to this orchestrator's deployment parameters.
func (o *Orchestrator) Predictor(maxDepth uint64) *predict.Predictor {
	return predict.New(predict.Config{
		Factory:  o.cfg.Address,
		Reserve:  o.cfg.Reserve,
		InitCode: o.cfg.AssetInitCode,
		MaxDepth: maxDepth,
	}, o.deps.Ledger, o.logger)
}

// Deployments lists the assets creator launched, oldest first.
func (o *Orchestrator) Deployments(creator common.Address) []common.Address {
	return append([]common.Address(nil), o.deployments[creator]...)
}

// Launch runs the whole launch protocol. Every step up to the lock is fatal and a
// failure reverts all effects; the trailing buy-swap is best effort.
func (o *Orchestrator) Launch(ctx context.Context, req Request) (Result, error) {
	if err := o.guard.Enter(); err != nil {
		return Result{}, err
	}
	defer o.guard.Exit()

	l := o.deps.Ledger
	snap := l.Snapshot()
	res, err := o.launch(ctx, req)
	if err != nil {
		if revertErr := l.RevertToSnapshot(snap); revertErr != nil {
			return Result{}, errors.Join(err, revertErr)
		}
		o.logger.Warn("launch reverted",
			zap.String("creator", req.Caller.Hex()),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		return Result{}, err
	}
	return res, nil
}

func (o *Orchestrator) launch(ctx context.Context, req Request) (Result, error) {
	l := o.deps.Ledger
	supply := orZero(req.Supply)
	recipientAmount := orZero(req.RecipientAmount)
	value := orZero(req.Value)

	// validation, before any side effect
	spacing, err := o.deps.Factory.TickSpacing(ctx, req.FeeTier)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidTick, err)
	}
	if err := pricing.ValidateTick(req.InitialTick, spacing); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidTick, err)
	}
	if supply.Sign() < 0 || recipientAmount.Sign() < 0 || recipientAmount.Cmp(supply) > 0 {
		return Result{}, fmt.Errorf("%w: %s of %s", ErrAllocationExceedsSupply, recipientAmount, supply)
	}
	lpAmount := new(big.Int).Sub(supply, recipientAmount)
	if value.Cmp(o.cfg.LaunchFee) < 0 {
		return Result{}, fmt.Errorf("%w: %s below launch fee %s", ErrInsufficientPayment, value, o.cfg.LaunchFee)
	}
	if value.Sign() > 0 {
		if err := l.Transfer(o.cfg.Reserve, req.Caller, o.cfg.Address, value); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrInsufficientPayment, err)
		}
	}

	asset, err := o.createAsset(req, supply)
	if err != nil {
		return Result{}, err
	}
	if !predict.Less(asset, o.cfg.Reserve) || supply.Sign() == 0 {
		return Result{}, fmt.Errorf("%w: asset %s, reserve %s, supply %s", ErrAddressOrderingViolation, asset.Hex(), o.cfg.Reserve.Hex(), supply)
	}

	if recipientAmount.Sign() > 0 && req.Recipient != (common.Address{}) {
		if err := l.Transfer(asset, o.cfg.Address, req.Recipient, recipientAmount); err != nil {
			return Result{}, fmt.Errorf("transfer recipient allocation: %w", err)
		}
	}

	pool, err := o.deps.Factory.CreatePool(ctx, asset, o.cfg.Reserve, req.FeeTier)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMarketCreationFailed, err)
	}
	sqrtPrice, err := pricing.SqrtPriceAtTick(req.InitialTick)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMarketInitializationFailed, err)
	}
	if err := o.deps.Factory.InitializePool(ctx, pool, sqrtPrice); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMarketInitializationFailed, err)
	}

	minted, err := o.provision(ctx, asset, req.FeeTier, req.InitialTick, spacing, lpAmount)
	if err != nil {
		return Result{}, err
	}

	unlockTime, err := o.lock(ctx, req, minted.PositionID)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Asset:      asset,
		PositionID: minted.PositionID,
		Pool:       pool,
		Tick:       req.InitialTick,
		LPAmount:   lpAmount,
		Liquidity:  minted.Liquidity,
		Amount0:    minted.Amount0,
		Amount1:    minted.Amount1,
		UnlockTime: unlockTime,
	}

	if remainder := new(big.Int).Sub(value, o.cfg.LaunchFee); remainder.Sign() > 0 {
		outcome, err := o.buy(ctx, req, asset, remainder)
		if err != nil {
			return Result{}, err
		}
		res.BoughtAmount, res.SwapErr = outcome.bought, outcome.err
	}

	if err := o.emitCreated(req, asset, minted.PositionID, supply, recipientAmount); err != nil {
		return Result{}, err
	}
	o.recordDeployment(req.Caller, asset)

	o.logger.Info("token launched",
		zap.String("asset", asset.Hex()),
		zap.String("creator", req.Caller.Hex()),
		zap.String("pool", pool.Hex()),
		zap.Uint64("position_id", minted.PositionID),
		zap.Int32("tick", req.InitialTick),
		zap.String("lp_amount", lpAmount.String()),
	)
	return res, nil
}

func (o *Orchestrator) createAsset(req Request, supply *big.Int) (common.Address, error) {
	params := predict.Params{Creator: req.Caller, Name: req.Name, Symbol: req.Symbol, Supply: supply}
	asset, err := o.PredictAddress(params, req.Salt)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrAssetCreationFailed, err)
	}
	if _, err := o.deps.Ledger.DeployToken(ledger.TokenSpec{
		Address:  asset,
		Name:     req.Name,
		Symbol:   req.Symbol,
		Decimals: AssetDecimals,
		Supply:   supply,
		Creator:  req.Caller,
		MintTo:   o.cfg.Address,
	}); err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrAssetCreationFailed, err)
	}
	return asset, nil
}

// provision mints the single-sided position over [tick, maxUsableTick). Whatever the
// mint does not consume stays with the orchestrator.
func (o *Orchestrator) provision(ctx context.Context, asset common.Address, feeTier uint32, tick, spacing int32, lpAmount *big.Int) (market.MintResult, error) {
	pm := o.deps.Positions
	if err := o.deps.Ledger.Approve(asset, o.cfg.Address, pm.Address(), lpAmount); err != nil {
		return market.MintResult{}, fmt.Errorf("%w: approve: %w", ErrPositionMintFailed, err)
	}
	minted, err := pm.Mint(ctx, o.cfg.Address, market.MintParams{
		Token0:         asset,
		Token1:         o.cfg.Reserve,
		Fee:            feeTier,
		TickLower:      tick,
		TickUpper:      pricing.MaxUsableTick(spacing),
		Amount0Desired: lpAmount,
		Amount1Desired: new(big.Int),
		Amount0Min:     new(big.Int),
		Amount1Min:     new(big.Int),
		Recipient:      o.cfg.Address,
	})
	if err != nil {
		return market.MintResult{}, fmt.Errorf("%w: %w", ErrPositionMintFailed, err)
	}
	if unused := new(big.Int).Sub(lpAmount, minted.Amount0); unused.Sign() > 0 {
		o.logger.Debug("mint left excess", zap.String("asset", asset.Hex()), zap.String("excess", unused.String()))
	}
	return minted, nil
}

func (o *Orchestrator) lock(ctx context.Context, req Request, id uint64) (uint64, error) {
	locker := o.deps.Locker
	if err := o.deps.Positions.SafeTransferFrom(ctx, o.cfg.Address, o.cfg.Address, locker.Address(), id); err != nil {
		return 0, fmt.Errorf("%w: transfer position %d: %w", ErrLockFailed, id, err)
	}
	owner := req.LockOwner
	if owner == (common.Address{}) {
		owner = req.Caller
	}
	unlockTime := o.deps.Ledger.Now() + uint64(o.cfg.LockDuration/time.Second)
	if err := locker.InitializePosition(ctx, o.cfg.Address, id, owner, unlockTime, o.cfg.FeeCut); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	return unlockTime, nil
}

type swapOutcome struct {
	bought *big.Int
	err    error
}

// buy swaps the remainder into the asset for the caller inside a nested snapshot. A
// failed swap is reverted and refunded; only a failed refund is fatal.
func (o *Orchestrator) buy(ctx context.Context, req Request, asset common.Address, amount *big.Int) (swapOutcome, error) {
	l := o.deps.Ledger
	router := o.deps.Router
	snap := l.Snapshot()

	bought, swapErr := func() (*big.Int, error) {
		if err := l.Approve(o.cfg.Reserve, o.cfg.Address, router.Address(), amount); err != nil {
			return nil, err
		}
		return router.ExactInputSingle(ctx, o.cfg.Address, market.ExactInputSingleParams{
			TokenIn:          o.cfg.Reserve,
			TokenOut:         asset,
			Fee:              req.FeeTier,
			Recipient:        req.Caller,
			AmountIn:         amount,
			AmountOutMinimum: orZero(req.MinAmountOut),
		})
	}()
	if swapErr == nil {
		return swapOutcome{bought: bought}, nil
	}

	if err := l.RevertToSnapshot(snap); err != nil {
		return swapOutcome{}, fmt.Errorf("revert buy swap: %w", err)
	}
	if err := l.Transfer(o.cfg.Reserve, o.cfg.Address, req.Caller, amount); err != nil {
		return swapOutcome{}, fmt.Errorf("refund buy amount: %w", err)
	}
	o.logger.Warn("buy swap failed, refunded",
		zap.String("asset", asset.Hex()),
		zap.String("caller", req.Caller.Hex()),
		zap.String("amount", amount.String()),
		zap.Error(swapErr),
	)
	return swapOutcome{err: swapErr}, nil
}

func (o *Orchestrator) emitCreated(req Request, asset common.Address, id uint64, supply, recipientAmount *big.Int) error {
	log, err := events.TokenCreated{
		Asset:           asset,
		PositionID:      id,
		Creator:         req.Caller,
		Name:            req.Name,
		Symbol:          req.Symbol,
		Supply:          supply,
		Recipient:       req.Recipient,
		RecipientAmount: recipientAmount,
	}.Encode(o.cfg.Address)
	if err != nil {
		return fmt.Errorf("encode token created: %w", err)
	}
	o.deps.Ledger.Emit(log)
	return nil
}

func (o *Orchestrator) recordDeployment(creator, asset common.Address) {
	o.deployments[creator] = append(o.deployments[creator], asset)
	o.deps.Ledger.OnRevert(func() {
		list := o.deployments[creator]
		if len(list) <= 1 {
			delete(o.deployments, creator)
			return
		}
		o.deployments[creator] = list[:len(list)-1]
	})
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
