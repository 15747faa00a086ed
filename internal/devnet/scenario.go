package devnet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad/internal/launch"
	"launchpad/internal/locker"
	"launchpad/internal/predict"
)

// Trader is the account the scenario trades from.
var Trader = common.HexToAddress("0x0000000000000000000000000000000000007ade")

// Scenario is a scripted launch lifecycle. Request.Salt is mined when zero, and
// Request.Caller is funded with Request.Value before the launch.
type Scenario struct {
	Request   launch.Request
	MaxDepth  uint64
	Trades    int
	TradeSize *big.Int
	Advance   time.Duration
	Collect   bool
	Withdraw  bool
}

// Outcome records what a scenario did.
type Outcome struct {
	Salt       predict.Result
	Launch     launch.Result
	Trades     int
	Collection *locker.FeeCollection
	Withdrawn  bool
}

// Run plays the scenario step by step; each step is its own transaction.
func (n *Network) Run(ctx context.Context, s Scenario) (Outcome, error) {
	var out Outcome
	req := s.Request

	if req.Salt == ([32]byte{}) {
		found, err := n.Orchestrator.Predictor(s.MaxDepth).GenerateSalt(ctx, predict.Params{
			Creator: req.Caller,
			Name:    req.Name,
			Symbol:  req.Symbol,
			Supply:  req.Supply,
		})
		if err != nil {
			return out, fmt.Errorf("generate salt: %w", err)
		}
		req.Salt = found.Salt
		out.Salt = found
	}

	if req.Value != nil && req.Value.Sign() > 0 {
		if err := n.Fund(req.Caller, req.Value); err != nil {
			return out, fmt.Errorf("fund creator: %w", err)
		}
	}

	res, err := n.Launch(ctx, req)
	if err != nil {
		return out, fmt.Errorf("launch: %w", err)
	}
	out.Launch = res
	n.logger.Info("launched",
		zap.String("asset", res.Asset.Hex()),
		zap.Uint64("position_id", res.PositionID),
		zap.Int32("tick", res.Tick),
		zap.Uint64("unlock_time", res.UnlockTime),
	)

	if s.Trades > 0 && s.TradeSize != nil && s.TradeSize.Sign() > 0 {
		total := new(big.Int).Mul(s.TradeSize, big.NewInt(int64(s.Trades)))
		if err := n.Fund(Trader, total); err != nil {
			return out, fmt.Errorf("fund trader: %w", err)
		}
		for i := 0; i < s.Trades; i++ {
			if err := n.Trade(ctx, Trader, res.Asset, req.FeeTier, s.TradeSize); err != nil {
				return out, fmt.Errorf("trade %d: %w", i, err)
			}
			out.Trades++
		}
	}

	n.Advance(s.Advance)

	owner := req.LockOwner
	if owner == (common.Address{}) {
		owner = req.Caller
	}
	if s.Collect {
		collection, err := n.CollectFees(ctx, owner, res.PositionID)
		if err != nil {
			return out, fmt.Errorf("collect fees: %w", err)
		}
		out.Collection = &collection
		n.logger.Info("fees collected",
			zap.Uint64("position_id", res.PositionID),
			zap.String("amount0", collection.Amount0.String()),
			zap.String("amount1", collection.Amount1.String()),
		)
	}
	if s.Withdraw {
		if err := n.Withdraw(ctx, owner, res.PositionID); err != nil {
			return out, fmt.Errorf("withdraw: %w", err)
		}
		out.Withdrawn = true
	}
	return out, nil
}
