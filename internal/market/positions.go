package market

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad/internal/pricing"
)

// Positions is the position manager view of a Memory market.
type Positions struct {
	m *Memory
}

var _ PositionManager = (*Positions)(nil)

func (p *Positions) Address() common.Address {
	return p.m.addrs.PositionManager
}

// Mint adds liquidity over [TickLower, TickUpper) and pulls the backing amounts from
// caller, which must have approved the position manager.
func (p *Positions) Mint(_ context.Context, caller common.Address, params MintParams) (MintResult, error) {
	m := p.m
	if params.Token0 == params.Token1 {
		return MintResult{}, ErrIdenticalTokens
	}
	if bytes.Compare(params.Token0.Bytes(), params.Token1.Bytes()) > 0 {
		return MintResult{}, ErrUnsortedTokens
	}
	pl, err := m.poolFor(params.Token0, params.Token1, params.Fee)
	if err != nil {
		return MintResult{}, err
	}
	if params.TickLower >= params.TickUpper {
		return MintResult{}, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, params.TickLower, params.TickUpper)
	}
	for _, tick := range []int32{params.TickLower, params.TickUpper} {
		if tick%pl.spacing != 0 || tick < pricing.MinUsableTick(pl.spacing) || tick > pricing.MaxUsableTick(pl.spacing) {
			return MintResult{}, fmt.Errorf("%w: tick %d spacing %d", ErrInvalidRange, tick, pl.spacing)
		}
	}
	sqrtA, err := pricing.SqrtPriceAtTick(params.TickLower)
	if err != nil {
		return MintResult{}, err
	}
	sqrtB, err := pricing.SqrtPriceAtTick(params.TickUpper)
	if err != nil {
		return MintResult{}, err
	}

	liquidity := liquidityForAmounts(pl.sqrtPriceX96, sqrtA, sqrtB, orZero(params.Amount0Desired), orZero(params.Amount1Desired))
	if liquidity.Sign() == 0 {
		return MintResult{}, ErrZeroLiquidity
	}
	amount0, amount1 := amountsForLiquidity(pl.sqrtPriceX96, sqrtA, sqrtB, liquidity)
	if amount0.Cmp(orZero(params.Amount0Min)) < 0 || amount1.Cmp(orZero(params.Amount1Min)) < 0 {
		return MintResult{}, fmt.Errorf("%w: minted %s/%s", ErrSlippage, amount0, amount1)
	}

	if amount0.Sign() > 0 {
		if err := m.ledger.TransferFrom(params.Token0, p.Address(), caller, pl.address, amount0); err != nil {
			return MintResult{}, fmt.Errorf("pull token0: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		if err := m.ledger.TransferFrom(params.Token1, p.Address(), caller, pl.address, amount1); err != nil {
			return MintResult{}, fmt.Errorf("pull token1: %w", err)
		}
	}

	if pl.tick >= params.TickLower && pl.tick < params.TickUpper {
		m.setPoolLiquidity(pl, new(big.Int).Add(pl.liquidity, liquidity))
	}

	id := m.nextID
	m.nextID++
	m.positions[id] = &position{
		Position: Position{
			ID:        id,
			Pool:      pl.address,
			Token0:    params.Token0,
			Token1:    params.Token1,
			Fee:       params.Fee,
			TickLower: params.TickLower,
			TickUpper: params.TickUpper,
			Liquidity: liquidity,
		},
		owner: params.Recipient,
		owed0: new(big.Int),
		owed1: new(big.Int),
	}
	m.ledger.OnRevert(func() {
		delete(m.positions, id)
		m.nextID = id
	})

	m.logger.Debug("position minted",
		zap.Uint64("position_id", id),
		zap.String("liquidity", liquidity.String()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)
	return MintResult{PositionID: id, Liquidity: new(big.Int).Set(liquidity), Amount0: amount0, Amount1: amount1}, nil
}

// Collect pays the owed fees of a position, capped per leg, to the recipient. Only the
// owner may collect; legs with nothing to pay are not transferred.
func (p *Positions) Collect(_ context.Context, caller common.Address, params CollectParams) (*big.Int, *big.Int, error) {
	m := p.m
	pos, ok := m.positions[params.PositionID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrPositionNotFound, params.PositionID)
	}
	if pos.owner != caller {
		return nil, nil, fmt.Errorf("%w: %d", ErrNotApproved, params.PositionID)
	}

	amount0 := minBig(pos.owed0, capOrMax(params.Amount0Max))
	amount1 := minBig(pos.owed1, capOrMax(params.Amount1Max))
	m.setOwed(pos, new(big.Int).Sub(pos.owed0, amount0), new(big.Int).Sub(pos.owed1, amount1))

	if amount0.Sign() > 0 {
		if err := m.ledger.Transfer(pos.Token0, pos.Pool, params.Recipient, amount0); err != nil {
			return nil, nil, fmt.Errorf("pay token0: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		if err := m.ledger.Transfer(pos.Token1, pos.Pool, params.Recipient, amount1); err != nil {
			return nil, nil, fmt.Errorf("pay token1: %w", err)
		}
	}
	return amount0, amount1, nil
}

func (p *Positions) Position(_ context.Context, id uint64) (Position, error) {
	pos, ok := p.m.positions[id]
	if !ok {
		return Position{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	out := pos.Position
	out.Liquidity = new(big.Int).Set(pos.Liquidity)
	return out, nil
}

func (p *Positions) OwnerOf(_ context.Context, id uint64) (common.Address, error) {
	pos, ok := p.m.positions[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	return pos.owner, nil
}

// Owed returns the fees a position can currently collect.
func (p *Positions) Owed(id uint64) (*big.Int, *big.Int, error) {
	pos, ok := p.m.positions[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	return new(big.Int).Set(pos.owed0), new(big.Int).Set(pos.owed1), nil
}

// SafeTransferFrom moves a position and, when the receiver is a contract, calls its
// receive hook. Ownership changes before the hook runs.
func (p *Positions) SafeTransferFrom(ctx context.Context, caller, from, to common.Address, id uint64) error {
	m := p.m
	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	if pos.owner != from || caller != from {
		return fmt.Errorf("%w: %d", ErrNotApproved, id)
	}

	prev := pos.owner
	pos.owner = to
	m.ledger.OnRevert(func() { pos.owner = prev })

	hasCode, err := m.ledger.HasCode(ctx, to)
	if err != nil {
		return err
	}
	if !hasCode {
		return nil
	}
	receiver, ok := m.receivers[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReceiver, to.Hex())
	}
	if err := receiver.OnPositionReceived(ctx, p.Address(), caller, from, id); err != nil {
		return fmt.Errorf("%w: %w", ErrReceiverRejected, err)
	}
	return nil
}

// AccrueFees credits fees to a position directly, paid by payer into the pool. It
// stands in for trading activity in simulations.
func (p *Positions) AccrueFees(payer common.Address, id uint64, amount0, amount1 *big.Int) error {
	m := p.m
	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	amount0, amount1 = orZero(amount0), orZero(amount1)
	if amount0.Sign() > 0 {
		if err := m.ledger.Transfer(pos.Token0, payer, pos.Pool, amount0); err != nil {
			return fmt.Errorf("fund token0 fees: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		if err := m.ledger.Transfer(pos.Token1, payer, pos.Pool, amount1); err != nil {
			return fmt.Errorf("fund token1 fees: %w", err)
		}
	}
	m.setOwed(pos, new(big.Int).Add(pos.owed0, amount0), new(big.Int).Add(pos.owed1, amount1))
	return nil
}

func (m *Memory) setOwed(pos *position, owed0, owed1 *big.Int) {
	prev0, prev1 := pos.owed0, pos.owed1
	pos.owed0, pos.owed1 = owed0, owed1
	m.ledger.OnRevert(func() { pos.owed0, pos.owed1 = prev0, prev1 })
}

// activePositions returns the in-range positions of a pool ordered by id.
func (m *Memory) activePositions(pl *pool) []*position {
	var out []*position
	for _, pos := range m.positions {
		if pos.Pool == pl.address && pl.tick >= pos.TickLower && pl.tick < pos.TickUpper {
			out = append(out, pos)
		}
	}
	slices.SortFunc(out, func(a, b *position) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// owedIn sums the fees owed in token by the positions of a pool.
func (m *Memory) owedIn(pl *pool, token common.Address) *big.Int {
	total := new(big.Int)
	for _, pos := range m.positions {
		if pos.Pool != pl.address {
			continue
		}
		if token == pos.Token0 {
			total.Add(total, pos.owed0)
		} else {
			total.Add(total, pos.owed1)
		}
	}
	return total
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func capOrMax(v *big.Int) *big.Int {
	if v == nil {
		return MaxAmount()
	}
	return v
}
