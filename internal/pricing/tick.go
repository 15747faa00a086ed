package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/daoleno/uniswapv3-sdk/constants"
	"github.com/daoleno/uniswapv3-sdk/utils"
	"github.com/shopspring/decimal"
)

// TickBase is the price ratio between adjacent ticks.
const TickBase = 1.0001

const (
	MinTick = int32(utils.MinTick)
	MaxTick = int32(utils.MaxTick)
)

var (
	ErrInvalidTick    = errors.New("invalid tick")
	ErrUnknownFeeTier = errors.New("unknown fee tier")
	ErrInvalidInput   = errors.New("invalid price input")
)

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// TickSpacing returns the tick spacing enabled for a fee tier (hundredths of a bip).
func TickSpacing(feeTier uint32) (int32, error) {
	spacing, ok := constants.TickSpacings[constants.FeeAmount(feeTier)]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFeeTier, feeTier)
	}
	return int32(spacing), nil
}

// MaxUsableTick is the largest multiple of spacing not above MaxTick.
func MaxUsableTick(spacing int32) int32 {
	if spacing <= 0 {
		return 0
	}
	return (MaxTick / spacing) * spacing
}

// MinUsableTick is the smallest multiple of spacing not below MinTick.
func MinUsableTick(spacing int32) int32 {
	if spacing <= 0 {
		return 0
	}
	return (MinTick / spacing) * spacing
}

// ValidateTick checks that tick is a multiple of spacing and leaves a non-empty range
// up to MaxUsableTick.
func ValidateTick(tick, spacing int32) error {
	if spacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidTick, spacing)
	}
	if tick%spacing != 0 {
		return fmt.Errorf("%w: %d is not a multiple of %d", ErrInvalidTick, tick, spacing)
	}
	if tick < MinUsableTick(spacing) || tick >= MaxUsableTick(spacing) {
		return fmt.Errorf("%w: %d outside [%d, %d)", ErrInvalidTick, tick, MinUsableTick(spacing), MaxUsableTick(spacing))
	}
	return nil
}

// SqrtPriceAtTick returns sqrt(1.0001^tick) as a Q64.96 fixed-point value.
func SqrtPriceAtTick(tick int32) (*big.Int, error) {
	sqrtPrice, err := utils.GetSqrtRatioAtTick(int(tick))
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %v", ErrInvalidTick, tick, err)
	}
	return sqrtPrice, nil
}

// PriceAtTick returns 1.0001^tick, the token1 per token0 price at tick.
func PriceAtTick(tick int32) decimal.Decimal {
	return decimal.NewFromFloat(math.Pow(TickBase, float64(tick)))
}

// PriceFromSqrtPrice squares a Q64.96 sqrt price back into a token1 per token0 price.
func PriceFromSqrtPrice(sqrtPriceX96 *big.Int, places int32) decimal.Decimal {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero
	}
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	rat := new(big.Rat).SetFrac(num, q192)
	price, err := decimal.NewFromString(rat.FloatString(int(places)))
	if err != nil {
		return decimal.Zero
	}
	return price
}

// NearestUsableTick rounds a real-valued tick to a multiple of spacing, resolving
// halves away from zero.
func NearestUsableTick(exact float64, spacing int32) int32 {
	return int32(math.Round(exact/float64(spacing))) * spacing
}
