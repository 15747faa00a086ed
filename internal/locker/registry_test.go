package locker

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"launchpad/internal/ledger"
	"launchpad/internal/market"
	"launchpad/internal/pricing"
)

var (
	tokenA    = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB    = common.HexToAddress("0x000000000000000000000000000000000000000b")
	depositor = common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	collector = common.HexToAddress("0xc0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0")
	admin     = common.HexToAddress("0xadadadadadadadadadadadadadadadadadadadad")
	regAddr   = common.HexToAddress("0xe0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0")
)

const (
	testFee    = uint32(3000)
	unlockTime = uint64(1_800_000_000)
)

type fixture struct {
	ledger   *ledger.Ledger
	market   *market.Memory
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.New(ledger.Options{ChainID: 1, StartTime: 1_700_000_000})
	supply := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))
	if _, err := l.DeployToken(ledger.TokenSpec{Address: tokenA, Symbol: "AAA", Decimals: 18, Supply: supply, MintTo: depositor}); err != nil {
		t.Fatalf("deploy token a: %v", err)
	}
	// token1 reverts on zero transfers, so every zero leg must be skipped.
	if _, err := l.DeployToken(ledger.TokenSpec{Address: tokenB, Symbol: "BBB", Decimals: 18, Supply: supply, MintTo: depositor, RejectZeroTransfers: true}); err != nil {
		t.Fatalf("deploy token b: %v", err)
	}

	m, err := market.NewMemory(l, market.Addresses{
		Factory:         common.HexToAddress("0xf0"),
		PositionManager: common.HexToAddress("0xf1"),
		Router:          common.HexToAddress("0xf2"),
	}, nil)
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	ctx := context.Background()
	pool, err := m.CreatePool(ctx, tokenA, tokenB, testFee)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	sqrt, err := pricing.SqrtPriceAtTick(0)
	if err != nil {
		t.Fatalf("sqrt price: %v", err)
	}
	if err := m.InitializePool(ctx, pool, sqrt); err != nil {
		t.Fatalf("initialize pool: %v", err)
	}

	reg, err := New(l, m.Positions(), Config{
		Address:    regAddr,
		Admin:      admin,
		Collector:  collector,
		Depositors: []common.Address{depositor},
	}, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	m.RegisterReceiver(regAddr, reg)
	return &fixture{ledger: l, market: m, registry: reg}
}

// deposit mints a position and hands it to the registry without locking it.
func (f *fixture) deposit(t *testing.T) uint64 {
	t.Helper()
	pm := f.market.Positions()
	amount := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	for _, tok := range []common.Address{tokenA, tokenB} {
		if err := f.ledger.Approve(tok, depositor, pm.Address(), amount); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	res, err := pm.Mint(context.Background(), depositor, market.MintParams{
		Token0:         tokenA,
		Token1:         tokenB,
		Fee:            testFee,
		TickLower:      -600,
		TickUpper:      600,
		Amount0Desired: amount,
		Amount1Desired: amount,
		Recipient:      depositor,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := pm.SafeTransferFrom(context.Background(), depositor, depositor, regAddr, res.PositionID); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return res.PositionID
}

func (f *fixture) lock(t *testing.T, feeCut uint16) uint64 {
	t.Helper()
	id := f.deposit(t)
	if err := f.registry.InitializePosition(context.Background(), depositor, id, owner, unlockTime, feeCut); err != nil {
		t.Fatalf("initialize position: %v", err)
	}
	return id
}

func (f *fixture) accrue(t *testing.T, id uint64, amount0, amount1 int64) {
	t.Helper()
	if err := f.market.Positions().AccrueFees(depositor, id, big.NewInt(amount0), big.NewInt(amount1)); err != nil {
		t.Fatalf("accrue fees: %v", err)
	}
}

func TestInitializePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.deposit(t)

	if err := f.registry.InitializePosition(ctx, stranger, id, owner, unlockTime, 60); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.registry.InitializePosition(ctx, depositor, id, owner, unlockTime, 1001); !errors.Is(err, ErrInvalidFeeCut) {
		t.Fatalf("expected invalid fee cut, got %v", err)
	}
	if err := f.registry.InitializePosition(ctx, depositor, id+1, owner, unlockTime, 60); !errors.Is(err, ErrPositionNotHeld) {
		t.Fatalf("expected position not held, got %v", err)
	}
	if err := f.registry.InitializePosition(ctx, depositor, id, owner, unlockTime, 1000); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.registry.InitializePosition(ctx, depositor, id, owner, unlockTime, 60); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}

	rec, ok := f.registry.Record(id)
	if !ok || rec.Owner != owner || rec.UnlockTime != unlockTime || rec.FeeCut != 1000 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if ids := f.registry.PositionsOf(owner); len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected owner index: %v", ids)
	}
}

func TestReceiveHookRejectsUnknownDepositor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.registry.OnPositionReceived(ctx, common.HexToAddress("0xbad"), depositor, depositor, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized manager, got %v", err)
	}
	pm := f.market.Positions().Address()
	if err := f.registry.OnPositionReceived(ctx, pm, stranger, stranger, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized depositor, got %v", err)
	}
	if err := f.registry.OnPositionReceived(ctx, pm, depositor, depositor, 1); err != nil {
		t.Fatalf("expected depositor accepted, got %v", err)
	}
}

func TestCollectFeesSplitsBetweenOwnerAndCollector(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, 60)
	f.accrue(t, id, 1_000_001, 999)

	got, err := f.registry.CollectFees(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	// 1_000_001 * 60 / 1000 = 60_000 (truncated), 999 * 60 / 1000 = 59
	checks := []struct {
		name string
		got  *big.Int
		want int64
	}{
		{"owner0", got.OwnerShare0, 940_001},
		{"collector0", got.CollectorShare0, 60_000},
		{"owner1", got.OwnerShare1, 940},
		{"collector1", got.CollectorShare1, 59},
	}
	for _, c := range checks {
		if c.got.Cmp(big.NewInt(c.want)) != 0 {
			t.Fatalf("%s: expected %d, got %s", c.name, c.want, c.got)
		}
	}
	if bal := f.ledger.BalanceOf(tokenA, collector); bal.Cmp(big.NewInt(60_000)) != 0 {
		t.Fatalf("collector balance %s", bal)
	}
	if bal := f.ledger.BalanceOf(tokenB, owner); bal.Cmp(big.NewInt(940)) != 0 {
		t.Fatalf("owner balance %s", bal)
	}
	if bal := f.ledger.BalanceOf(tokenA, regAddr); bal.Sign() != 0 {
		t.Fatalf("registry kept %s", bal)
	}

	if _, err := f.registry.CollectFees(context.Background(), stranger, id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
}

func TestSplitFeeConservesAmount(t *testing.T) {
	for _, amount := range []int64{0, 1, 7, 999, 1000, 1001, 123_456_789} {
		for _, cut := range []uint16{0, 1, 60, 333, 999, 1000} {
			ownerShare, collectorShare := SplitFee(big.NewInt(amount), cut)
			sum := new(big.Int).Add(ownerShare, collectorShare)
			if sum.Cmp(big.NewInt(amount)) != 0 {
				t.Fatalf("amount %d cut %d: shares sum to %s", amount, cut, sum)
			}
			want := amount * int64(cut) / 1000
			if collectorShare.Int64() != want {
				t.Fatalf("amount %d cut %d: collector share %s, want %d", amount, cut, collectorShare, want)
			}
		}
	}
}

func TestCollectSkipsZeroLegs(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, 0)
	f.accrue(t, id, 500, 0)

	got, err := f.registry.CollectFees(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("collect with zero legs: %v", err)
	}
	if got.OwnerShare0.Cmp(big.NewInt(500)) != 0 || got.Amount1.Sign() != 0 {
		t.Fatalf("unexpected collection: %+v", got)
	}

	// nothing owed at all
	if _, err := f.registry.CollectFees(context.Background(), owner, id); err != nil {
		t.Fatalf("empty collect: %v", err)
	}
}

func TestCollectorHookCannotReenter(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, 500)
	f.accrue(t, id, 1000, 1000)

	var inner error
	f.ledger.SetReceiveHook(collector, func(_, _ common.Address, _ *big.Int) error {
		_, inner = f.registry.CollectFees(context.Background(), owner, id)
		return inner
	})

	if _, err := f.registry.CollectFees(context.Background(), owner, id); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected reentrant call, got %v", err)
	}
	if !errors.Is(inner, ErrReentrantCall) {
		t.Fatalf("inner call not blocked: %v", inner)
	}
	owed0, owed1, err := f.market.Positions().Owed(id)
	if err != nil {
		t.Fatalf("owed: %v", err)
	}
	if owed0.Cmp(big.NewInt(1000)) != 0 || owed1.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("failed collect not reverted: %s/%s", owed0, owed1)
	}
	if bal := f.ledger.BalanceOf(tokenA, owner); bal.Sign() != 0 {
		t.Fatalf("owner paid despite revert: %s", bal)
	}

	f.ledger.SetReceiveHook(collector, nil)
	if _, err := f.registry.CollectFees(context.Background(), owner, id); err != nil {
		t.Fatalf("collect after hook removed: %v", err)
	}
}

func TestCollectAllAndSelected(t *testing.T) {
	f := newFixture(t)
	first := f.lock(t, 0)
	second := f.lock(t, 0)
	f.accrue(t, first, 100, 0)
	f.accrue(t, second, 250, 40)

	batch, err := f.registry.CollectAllFees(context.Background(), owner)
	if err != nil {
		t.Fatalf("collect all: %v", err)
	}
	if len(batch.Collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(batch.Collections))
	}
	if batch.Totals[tokenA].Cmp(big.NewInt(350)) != 0 || batch.Totals[tokenB].Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected totals: %v", batch.Totals)
	}

	f.accrue(t, first, 10, 0)
	_, err = f.registry.CollectSelectedFees(context.Background(), owner, []uint64{first, 999})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	owed0, _, _ := f.market.Positions().Owed(first)
	if owed0.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("batch not reverted, owed %s", owed0)
	}
}

func TestWithdrawAfterUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.lock(t, 60)

	if err := f.registry.Withdraw(ctx, owner, id); !errors.Is(err, ErrStillLocked) {
		t.Fatalf("expected still locked, got %v", err)
	}
	if err := f.registry.Withdraw(ctx, stranger, id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}

	f.ledger.SetTime(unlockTime)
	if err := f.registry.Withdraw(ctx, owner, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	held, err := f.market.Positions().OwnerOf(ctx, id)
	if err != nil || held != owner {
		t.Fatalf("position not returned: %s %v", held.Hex(), err)
	}
	if _, ok := f.registry.Record(id); ok {
		t.Fatalf("record survived withdraw")
	}
	if ids := f.registry.PositionsOf(owner); len(ids) != 0 {
		t.Fatalf("index survived withdraw: %v", ids)
	}
	if _, err := f.registry.CollectFees(ctx, owner, id); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}

	// withdrawn ids can never be locked again
	if err := f.market.Positions().SafeTransferFrom(ctx, owner, owner, depositor, id); err != nil {
		t.Fatalf("hand back: %v", err)
	}
	if err := f.market.Positions().SafeTransferFrom(ctx, depositor, depositor, regAddr, id); err != nil {
		t.Fatalf("redeposit: %v", err)
	}
	if err := f.registry.InitializePosition(ctx, depositor, id, owner, unlockTime, 60); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected tombstoned id, got %v", err)
	}
}

func TestTransferLockOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.lock(t, 60)

	if err := f.registry.TransferLockOwnership(ctx, stranger, id, stranger); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := f.registry.TransferLockOwnership(ctx, owner, id, common.Address{}); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected invalid owner, got %v", err)
	}
	if err := f.registry.TransferLockOwnership(ctx, owner, id, stranger); err != nil {
		t.Fatalf("transfer lock: %v", err)
	}
	if ids := f.registry.PositionsOf(owner); len(ids) != 0 {
		t.Fatalf("old owner still indexed: %v", ids)
	}
	if ids := f.registry.PositionsOf(stranger); len(ids) != 1 || ids[0] != id {
		t.Fatalf("new owner not indexed: %v", ids)
	}
	f.accrue(t, id, 1000, 0)
	if _, err := f.registry.CollectFees(ctx, owner, id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("old owner collected: %v", err)
	}
	if _, err := f.registry.CollectFees(ctx, stranger, id); err != nil {
		t.Fatalf("new owner collect: %v", err)
	}
}

func TestAdminSetters(t *testing.T) {
	f := newFixture(t)
	newCollector := common.HexToAddress("0xc1")

	if err := f.registry.SetCollector(stranger, newCollector); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.registry.SetCollector(admin, newCollector); err != nil {
		t.Fatalf("set collector: %v", err)
	}
	if f.registry.Collector() != newCollector {
		t.Fatalf("collector not updated")
	}
	if err := f.registry.AddDepositor(admin, stranger); err != nil {
		t.Fatalf("add depositor: %v", err)
	}
	if !f.registry.IsDepositor(stranger) {
		t.Fatalf("depositor not added")
	}
	if err := f.registry.RemoveDepositor(admin, stranger); err != nil {
		t.Fatalf("remove depositor: %v", err)
	}
	if f.registry.IsDepositor(stranger) {
		t.Fatalf("depositor not removed")
	}
}
