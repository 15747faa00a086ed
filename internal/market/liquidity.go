package market

import (
	"math/big"

	"github.com/daoleno/uniswapv3-sdk/utils"
)

// liquidityForAmounts is the periphery's LiquidityAmounts rule, Q96 intermediate
// included, so minted liquidity matches what a live position manager would mint.
func liquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	return utils.MaxLiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1, false)
}

// amountsForLiquidity returns the token amounts backing liquidity at the current price,
// rounded up as the pool charges them.
func amountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return utils.GetAmount0Delta(sqrtA, sqrtB, liquidity, true), new(big.Int)
	case sqrtP.Cmp(sqrtB) < 0:
		return utils.GetAmount0Delta(sqrtP, sqrtB, liquidity, true), utils.GetAmount1Delta(sqrtA, sqrtP, liquidity, true)
	default:
		return new(big.Int), utils.GetAmount1Delta(sqrtA, sqrtB, liquidity, true)
	}
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
