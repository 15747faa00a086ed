package market

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrPoolExists         = errors.New("pool already exists")
	ErrPoolNotFound       = errors.New("pool not found")
	ErrAlreadyInitialized = errors.New("pool already initialized")
	ErrNotInitialized     = errors.New("pool not initialized")
	ErrUnsortedTokens     = errors.New("tokens not sorted")
	ErrIdenticalTokens    = errors.New("identical tokens")
	ErrInvalidRange       = errors.New("invalid tick range")
	ErrZeroLiquidity      = errors.New("zero liquidity")
	ErrPositionNotFound   = errors.New("position not found")
	ErrNotApproved        = errors.New("caller is not owner of position")
	ErrReceiverRejected   = errors.New("position receiver rejected transfer")
	ErrNotReceiver        = errors.New("transfer to non receiver contract")
	ErrSlippage           = errors.New("too little received")
	ErrInsufficientLiq    = errors.New("insufficient liquidity")
)

// MintParams mirrors the position manager mint call.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TickLower      int32
	TickUpper      int32
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
}

// MintResult is what a mint actually consumed.
type MintResult struct {
	PositionID uint64
	Liquidity  *big.Int
	Amount0    *big.Int
	Amount1    *big.Int
}

// CollectParams mirrors the position manager collect call.
type CollectParams struct {
	PositionID uint64
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// Position is the position manager view of a position.
type Position struct {
	ID        uint64
	Pool      common.Address
	Token0    common.Address
	Token1    common.Address
	Fee       uint32
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
}

// ExactInputSingleParams mirrors the router's single-hop exact-input swap.
type ExactInputSingleParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// PoolFactory creates and initializes pools.
type PoolFactory interface {
	CreatePool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
	InitializePool(ctx context.Context, pool common.Address, sqrtPriceX96 *big.Int) error
	TickSpacing(ctx context.Context, fee uint32) (int32, error)
}

// PositionManager mints positions, collects their fees and transfers ownership.
type PositionManager interface {
	Address() common.Address
	Mint(ctx context.Context, caller common.Address, params MintParams) (MintResult, error)
	Collect(ctx context.Context, caller common.Address, params CollectParams) (*big.Int, *big.Int, error)
	Position(ctx context.Context, id uint64) (Position, error)
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)
	SafeTransferFrom(ctx context.Context, caller, from, to common.Address, id uint64) error
}

// SwapRouter executes swaps.
type SwapRouter interface {
	Address() common.Address
	ExactInputSingle(ctx context.Context, caller common.Address, params ExactInputSingleParams) (*big.Int, error)
}

// PositionReceiver is the receive hook a contract exposes to accept positions. manager
// is the position manager delivering the position.
type PositionReceiver interface {
	OnPositionReceived(ctx context.Context, manager, operator, from common.Address, id uint64) error
}

// MaxAmount is the collect cap meaning "everything owed".
func MaxAmount() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
}
