package pricing

import (
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickSpacingByFeeTier(t *testing.T) {
	cases := map[uint32]int32{500: 10, 3000: 60, 10000: 200}
	for fee, want := range cases {
		got, err := TickSpacing(fee)
		require.NoError(t, err)
		assert.Equal(t, want, got, "fee tier %d", fee)
	}

	_, err := TickSpacing(1234)
	assert.ErrorIs(t, err, ErrUnknownFeeTier)
}

func TestUsableTickBounds(t *testing.T) {
	assert.Equal(t, int32(887200), MaxUsableTick(200))
	assert.Equal(t, int32(-887200), MinUsableTick(200))
	assert.Equal(t, int32(887220), MaxUsableTick(60))
	assert.Equal(t, int32(-887220), MinUsableTick(60))
}

func TestValidateTick(t *testing.T) {
	assert.ErrorIs(t, ValidateTick(-207001, 200), ErrInvalidTick)
	assert.NoError(t, ValidateTick(-207000, 200))
	assert.ErrorIs(t, ValidateTick(MaxUsableTick(200), 200), ErrInvalidTick, "empty range above max usable tick")
	assert.ErrorIs(t, ValidateTick(0, 0), ErrInvalidTick)
}

func TestSqrtPriceAtTick(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	r0, err := SqrtPriceAtTick(0)
	require.NoError(t, err)
	assert.Equal(t, 0, r0.Cmp(q96), "tick 0 is price 1")

	_, err = SqrtPriceAtTick(MaxTick + 1)
	assert.ErrorIs(t, err, ErrInvalidTick)

	low, err := SqrtPriceAtTick(-207000)
	require.NoError(t, err)
	high, err := SqrtPriceAtTick(-206800)
	require.NoError(t, err)
	assert.Equal(t, -1, low.Cmp(high), "sqrt price is monotonic in tick")
}

func TestPriceFromSqrtPriceRoundTrip(t *testing.T) {
	sqrt, err := SqrtPriceAtTick(-207000)
	require.NoError(t, err)

	fromSqrt := PriceFromSqrtPrice(sqrt, 30).InexactFloat64()
	direct := PriceAtTick(-207000).InexactFloat64()
	assert.InDelta(t, 1.0, fromSqrt/direct, 1e-9)
}

func TestNearestUsableTickRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, int32(400), NearestUsableTick(300, 200))
	assert.Equal(t, int32(-400), NearestUsableTick(-300, 200))
	assert.Equal(t, int32(-200), NearestUsableTick(-299.9, 200))
	assert.Equal(t, int32(-207000), NearestUsableTick(-207001, 200))
}

func TestTickForMarketCap(t *testing.T) {
	quote, err := TickForMarketCap(MarketCapQuery{
		MarketCap:    decimal.NewFromInt(30_000),
		ReservePrice: decimal.NewFromInt(3_000),
		Supply:       decimal.NewFromInt(100_000_000_000),
		TickSpacing:  200,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(-230200), quote.ValidTick)
	assert.InDelta(t, -230270.58, quote.ExactTick, 0.01)
	assert.True(t, quote.TargetPrice.Equal(decimal.RequireFromString("0.0000000001")))
	assert.False(t, quote.RealizedMarketCap.Equal(decimal.NewFromInt(30_000)), "realized cap reflects rounding")
	assert.InDelta(t, 30_000, quote.RealizedMarketCap.InexactFloat64(), 30_000*0.01)
}

func TestTickForMarketCapIsClosestMultiple(t *testing.T) {
	supply := decimal.NewFromInt(1_000_000_000)
	reserve := decimal.NewFromInt(2_500)
	caps := []int64{5_000, 12_345, 75_000, 1_000_000, 42_000_000}
	spacings := []int32{10, 60, 200}

	for _, spacing := range spacings {
		for _, c := range caps {
			target := decimal.NewFromInt(c)
			quote, err := TickForMarketCap(MarketCapQuery{MarketCap: target, ReservePrice: reserve, Supply: supply, TickSpacing: spacing})
			require.NoError(t, err)
			assert.Zero(t, quote.ValidTick%spacing)

			distance := func(tick int32) float64 {
				implied := MarketCapAtTick(tick, supply, reserve).InexactFloat64()
				return math.Abs(math.Log(implied / target.InexactFloat64()))
			}
			chosen := distance(quote.ValidTick)
			assert.LessOrEqual(t, chosen, distance(quote.ValidTick-spacing)+1e-12, "cap %d spacing %d", c, spacing)
			assert.LessOrEqual(t, chosen, distance(quote.ValidTick+spacing)+1e-12, "cap %d spacing %d", c, spacing)
		}
	}
}

func TestTickForMarketCapRejectsBadInput(t *testing.T) {
	_, err := TickForMarketCap(MarketCapQuery{
		MarketCap:    decimal.Zero,
		ReservePrice: decimal.NewFromInt(1),
		Supply:       decimal.NewFromInt(1),
		TickSpacing:  60,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = TickForMarketCap(MarketCapQuery{
		MarketCap:    decimal.NewFromInt(1),
		ReservePrice: decimal.NewFromInt(1),
		Supply:       decimal.NewFromInt(1),
		TickSpacing:  0,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
