package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const pricePlaces = 40

// MarketCapQuery asks for the tick implied by a target market capitalization.
type MarketCapQuery struct {
	// MarketCap is the target capitalization in the reference currency.
	MarketCap decimal.Decimal
	// ReservePrice is the reference-currency price of one reserve asset unit.
	ReservePrice decimal.Decimal
	// Supply is the circulating supply committed to the market, in whole tokens.
	Supply      decimal.Decimal
	TickSpacing int32
}

// MarketCapQuote is the answer to a MarketCapQuery. The realized values are expanded
// back from ValidTick and differ from the request by the rounding to tick spacing.
type MarketCapQuote struct {
	TargetPrice       decimal.Decimal
	ExactTick         float64
	ValidTick         int32
	RealizedPrice     decimal.Decimal
	RealizedMarketCap decimal.Decimal
}

// TickForMarketCap converts a target market cap into a usable tick. Both assets are
// assumed to share decimals, so whole-token and raw prices coincide.
//
// ValidTick is the spacing multiple nearest to ExactTick in tick space, which is log
// price space. Prices grow geometrically with the tick, so the adjacent multiple can
// give a RealizedMarketCap closer to the target in linear terms.
func TickForMarketCap(q MarketCapQuery) (MarketCapQuote, error) {
	if !q.MarketCap.IsPositive() {
		return MarketCapQuote{}, fmt.Errorf("%w: market cap must be positive", ErrInvalidInput)
	}
	if !q.ReservePrice.IsPositive() {
		return MarketCapQuote{}, fmt.Errorf("%w: reserve price must be positive", ErrInvalidInput)
	}
	if !q.Supply.IsPositive() {
		return MarketCapQuote{}, fmt.Errorf("%w: supply must be positive", ErrInvalidInput)
	}
	if q.TickSpacing <= 0 {
		return MarketCapQuote{}, fmt.Errorf("%w: tick spacing %d", ErrInvalidInput, q.TickSpacing)
	}

	// price of one asset unit in reserve units
	target := q.MarketCap.DivRound(q.Supply.Mul(q.ReservePrice), pricePlaces)
	exact := math.Log(target.InexactFloat64()) / math.Log(TickBase)
	if math.IsNaN(exact) || math.IsInf(exact, 0) {
		return MarketCapQuote{}, fmt.Errorf("%w: price %s out of range", ErrInvalidInput, target)
	}

	valid := NearestUsableTick(exact, q.TickSpacing)
	if err := ValidateTick(valid, q.TickSpacing); err != nil {
		return MarketCapQuote{}, err
	}

	realized := PriceAtTick(valid)
	return MarketCapQuote{
		TargetPrice:       target,
		ExactTick:         exact,
		ValidTick:         valid,
		RealizedPrice:     realized,
		RealizedMarketCap: MarketCapAtTick(valid, q.Supply, q.ReservePrice),
	}, nil
}

// MarketCapAtTick expands a tick into the market cap it implies for supply.
func MarketCapAtTick(tick int32, supply, reservePrice decimal.Decimal) decimal.Decimal {
	return PriceAtTick(tick).Mul(supply).Mul(reservePrice)
}
