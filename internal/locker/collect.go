package locker

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad/internal/events"
	"launchpad/internal/market"
)

// FeeCollection is the outcome of collecting one position.
type FeeCollection struct {
	PositionID      uint64
	Owner           common.Address
	Token0          common.Address
	Token1          common.Address
	Amount0         *big.Int
	Amount1         *big.Int
	OwnerShare0     *big.Int
	OwnerShare1     *big.Int
	CollectorShare0 *big.Int
	CollectorShare1 *big.Int
}

// BatchCollection aggregates the owner shares of several collections per token.
type BatchCollection struct {
	Collections []FeeCollection
	Totals      map[common.Address]*big.Int
}

// SplitFee divides a collected amount into owner and collector shares. The collector
// share rounds down.
func SplitFee(amount *big.Int, feeCut uint16) (ownerShare, collectorShare *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int), new(big.Int)
	}
	collectorShare = new(big.Int).Mul(amount, big.NewInt(int64(feeCut)))
	collectorShare.Quo(collectorShare, big.NewInt(FeeCutDenominator))
	ownerShare = new(big.Int).Sub(amount, collectorShare)
	return ownerShare, collectorShare
}

// CollectFees collects every fee owed to a locked position and pays it out split
// between the lock owner and the collector.
func (r *Registry) CollectFees(ctx context.Context, caller common.Address, id uint64) (FeeCollection, error) {
	var out FeeCollection
	err := r.enter(func() error {
		var err error
		out, err = r.collect(ctx, caller, id)
		return err
	})
	if err != nil {
		return FeeCollection{}, err
	}
	return out, nil
}

// CollectAllFees collects every position the caller owns.
func (r *Registry) CollectAllFees(ctx context.Context, caller common.Address) (BatchCollection, error) {
	return r.collectBatch(ctx, caller, func() []uint64 { return r.PositionsOf(caller) })
}

// CollectSelectedFees collects the given positions. Any failure reverts the batch.
func (r *Registry) CollectSelectedFees(ctx context.Context, caller common.Address, ids []uint64) (BatchCollection, error) {
	return r.collectBatch(ctx, caller, func() []uint64 { return ids })
}

func (r *Registry) collectBatch(ctx context.Context, caller common.Address, ids func() []uint64) (BatchCollection, error) {
	out := BatchCollection{Totals: make(map[common.Address]*big.Int)}
	err := r.enter(func() error {
		for _, id := range ids() {
			c, err := r.collect(ctx, caller, id)
			if err != nil {
				return fmt.Errorf("position %d: %w", id, err)
			}
			out.Collections = append(out.Collections, c)
			addTotal(out.Totals, c.Token0, c.OwnerShare0)
			addTotal(out.Totals, c.Token1, c.OwnerShare1)
		}
		return nil
	})
	if err != nil {
		return BatchCollection{}, err
	}
	return out, nil
}

// collect runs inside enter. Ownership is checked per position at the time it is
// collected.
func (r *Registry) collect(ctx context.Context, caller common.Address, id uint64) (FeeCollection, error) {
	rec, err := r.ownedRecord(caller, id)
	if err != nil {
		return FeeCollection{}, err
	}
	pos, err := r.positions.Position(ctx, id)
	if err != nil {
		return FeeCollection{}, fmt.Errorf("load position: %w", err)
	}

	amount0, amount1, err := r.positions.Collect(ctx, r.addr, market.CollectParams{
		PositionID: id,
		Recipient:  r.addr,
		Amount0Max: market.MaxAmount(),
		Amount1Max: market.MaxAmount(),
	})
	if err != nil {
		return FeeCollection{}, fmt.Errorf("collect: %w", err)
	}

	out := FeeCollection{
		PositionID: id,
		Owner:      rec.Owner,
		Token0:     pos.Token0,
		Token1:     pos.Token1,
		Amount0:    amount0,
		Amount1:    amount1,
	}
	out.OwnerShare0, out.CollectorShare0 = SplitFee(amount0, rec.FeeCut)
	out.OwnerShare1, out.CollectorShare1 = SplitFee(amount1, rec.FeeCut)

	collector := r.collector
	for _, leg := range []struct {
		token, to common.Address
		amount    *big.Int
	}{
		{pos.Token0, rec.Owner, out.OwnerShare0},
		{pos.Token0, collector, out.CollectorShare0},
		{pos.Token1, rec.Owner, out.OwnerShare1},
		{pos.Token1, collector, out.CollectorShare1},
	} {
		if leg.amount.Sign() == 0 {
			continue
		}
		if err := r.ledger.Transfer(leg.token, r.addr, leg.to, leg.amount); err != nil {
			return FeeCollection{}, fmt.Errorf("pay %s: %w", leg.to.Hex(), err)
		}
	}

	if err := r.emit(events.FeesCollected{
		PositionID:      id,
		Owner:           rec.Owner,
		Collector:       collector,
		Token0:          pos.Token0,
		Token1:          pos.Token1,
		Amount0:         amount0,
		Amount1:         amount1,
		CollectorShare0: out.CollectorShare0,
		CollectorShare1: out.CollectorShare1,
	}); err != nil {
		return FeeCollection{}, err
	}
	r.logger.Debug("fees collected",
		zap.Uint64("position_id", id),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)
	return out, nil
}

func addTotal(totals map[common.Address]*big.Int, token common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	cur, ok := totals[token]
	if !ok {
		cur = new(big.Int)
	}
	totals[token] = new(big.Int).Add(cur, amount)
}
