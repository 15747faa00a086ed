package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/daoleno/uniswapv3-sdk/constants"
	"github.com/daoleno/uniswapv3-sdk/utils"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const feeDenominator = 1_000_000

// Router is the swap router view of a Memory market.
type Router struct {
	m *Memory
}

var _ SwapRouter = (*Router)(nil)

func (r *Router) Address() common.Address {
	return r.m.addrs.Router
}

// ExactInputSingle swaps AmountIn of TokenIn at the pool's spot price. The pool fee is
// taken from the input and credited to in-range positions pro rata to their liquidity.
// caller must have approved the router for TokenIn.
func (r *Router) ExactInputSingle(_ context.Context, caller common.Address, params ExactInputSingleParams) (*big.Int, error) {
	m := r.m
	amountIn := orZero(params.AmountIn)
	if amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount in %s", ErrInsufficientLiq, amountIn)
	}
	pl, err := m.poolFor(params.TokenIn, params.TokenOut, params.Fee)
	if err != nil {
		return nil, err
	}
	if pl.liquidity.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s has no active liquidity", ErrInsufficientLiq, pl.address.Hex())
	}

	fee := utils.MulDivRoundingUp(amountIn, big.NewInt(int64(pl.key.fee)), big.NewInt(feeDenominator))
	net := new(big.Int).Sub(amountIn, fee)

	// price = (sqrtP / Q96)^2 token1 per token0
	priceNum := new(big.Int).Mul(pl.sqrtPriceX96, pl.sqrtPriceX96)
	priceDen := constants.Q192
	out := new(big.Int)
	if params.TokenIn == pl.key.token0 {
		out.Mul(net, priceNum).Div(out, priceDen)
	} else {
		out.Mul(net, priceDen).Div(out, priceNum)
	}

	available := new(big.Int).Sub(m.ledger.BalanceOf(params.TokenOut, pl.address), m.owedIn(pl, params.TokenOut))
	if out.Cmp(available) > 0 {
		return nil, fmt.Errorf("%w: want %s, pool holds %s", ErrInsufficientLiq, out, available)
	}
	if out.Sign() == 0 || out.Cmp(orZero(params.AmountOutMinimum)) < 0 {
		return nil, fmt.Errorf("%w: %s out", ErrSlippage, out)
	}

	if err := m.ledger.TransferFrom(params.TokenIn, r.Address(), caller, pl.address, amountIn); err != nil {
		return nil, fmt.Errorf("pull input: %w", err)
	}
	if err := m.ledger.Transfer(params.TokenOut, pl.address, params.Recipient, out); err != nil {
		return nil, fmt.Errorf("pay output: %w", err)
	}
	m.distributeFee(pl, params.TokenIn, fee)

	m.logger.Debug("swap",
		zap.String("pool", pl.address.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", out.String()),
	)
	return out, nil
}

func (m *Memory) distributeFee(pl *pool, token common.Address, fee *big.Int) {
	if fee.Sign() == 0 {
		return
	}
	for _, pos := range m.activePositions(pl) {
		share := new(big.Int).Mul(fee, pos.Liquidity)
		share.Div(share, pl.liquidity)
		if share.Sign() == 0 {
			continue
		}
		if token == pos.Token0 {
			m.setOwed(pos, new(big.Int).Add(pos.owed0, share), pos.owed1)
		} else {
			m.setOwed(pos, pos.owed0, new(big.Int).Add(pos.owed1, share))
		}
	}
}
