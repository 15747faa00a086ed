package market

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"launchpad/internal/ledger"
	"launchpad/internal/pricing"
)

var (
	tokenA  = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB  = common.HexToAddress("0x000000000000000000000000000000000000000b")
	lp      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	trader  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	vault   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testFee = uint32(3000)
)

type fixture struct {
	ledger *ledger.Ledger
	market *Memory
	pool   common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.New(ledger.Options{ChainID: 1, StartTime: 1_700_000_000})
	supply := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))
	for _, tok := range []common.Address{tokenA, tokenB} {
		if _, err := l.DeployToken(ledger.TokenSpec{Address: tok, Symbol: tok.Hex()[38:], Decimals: 18, Supply: supply, MintTo: lp}); err != nil {
			t.Fatalf("deploy token: %v", err)
		}
		if err := l.Transfer(tok, lp, trader, big.NewInt(1e18)); err != nil {
			t.Fatalf("fund trader: %v", err)
		}
	}

	m, err := NewMemory(l, Addresses{
		Factory:         common.HexToAddress("0xf0"),
		PositionManager: common.HexToAddress("0xf1"),
		Router:          common.HexToAddress("0xf2"),
	}, nil)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	ctx := context.Background()
	pool, err := m.CreatePool(ctx, tokenB, tokenA, testFee)
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
	return &fixture{ledger: l, market: m, pool: pool}
}

func (f *fixture) mint(t *testing.T, owner common.Address) MintResult {
	t.Helper()
	pm := f.market.Positions()
	amount := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	for _, tok := range []common.Address{tokenA, tokenB} {
		if err := f.ledger.Approve(tok, lp, pm.Address(), amount); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	res, err := pm.Mint(context.Background(), lp, MintParams{
		Token0:         tokenA,
		Token1:         tokenB,
		Fee:            testFee,
		TickLower:      -600,
		TickUpper:      600,
		Amount0Desired: amount,
		Amount1Desired: amount,
		Recipient:      owner,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return res
}

func TestPoolLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.market.PoolAddress(tokenA, tokenB, testFee); got != f.pool {
		t.Fatalf("pool address mismatch: %s vs %s", got.Hex(), f.pool.Hex())
	}
	if _, err := f.market.CreatePool(ctx, tokenA, tokenB, testFee); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("expected pool exists, got %v", err)
	}
	if _, err := f.market.CreatePool(ctx, tokenA, tokenA, testFee); !errors.Is(err, ErrIdenticalTokens) {
		t.Fatalf("expected identical tokens, got %v", err)
	}
	sqrt, err := pricing.SqrtPriceAtTick(60)
	if err != nil {
		t.Fatalf("sqrt price: %v", err)
	}
	if err := f.market.InitializePool(ctx, f.pool, sqrt); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	_, tick, ok := f.market.PoolState(f.pool)
	if !ok || tick != 0 {
		t.Fatalf("unexpected pool state: tick=%d ok=%v", tick, ok)
	}
}

func TestMintPullsAmountsAndAssignsOwner(t *testing.T) {
	f := newFixture(t)
	before := f.ledger.BalanceOf(tokenA, lp)

	res := f.mint(t, vault)
	if res.PositionID != 1 || res.Liquidity.Sign() <= 0 {
		t.Fatalf("unexpected mint result: %+v", res)
	}
	spent := new(big.Int).Sub(before, f.ledger.BalanceOf(tokenA, lp))
	if spent.Cmp(res.Amount0) != 0 {
		t.Fatalf("spent %s, reported %s", spent, res.Amount0)
	}
	if got := f.ledger.BalanceOf(tokenA, f.pool); got.Cmp(res.Amount0) != 0 {
		t.Fatalf("pool balance mismatch: %s", got)
	}
	owner, err := f.market.Positions().OwnerOf(context.Background(), res.PositionID)
	if err != nil || owner != vault {
		t.Fatalf("owner mismatch: %s %v", owner.Hex(), err)
	}
}

func TestMintRejectsUnsortedAndBadRange(t *testing.T) {
	f := newFixture(t)
	pm := f.market.Positions()
	ctx := context.Background()

	_, err := pm.Mint(ctx, lp, MintParams{Token0: tokenB, Token1: tokenA, Fee: testFee, TickLower: -60, TickUpper: 60})
	if !errors.Is(err, ErrUnsortedTokens) {
		t.Fatalf("expected unsorted tokens, got %v", err)
	}
	_, err = pm.Mint(ctx, lp, MintParams{Token0: tokenA, Token1: tokenB, Fee: testFee, TickLower: -61, TickUpper: 60})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestSwapAccruesFeesToPosition(t *testing.T) {
	f := newFixture(t)
	res := f.mint(t, lp)
	router := f.market.Router()
	ctx := context.Background()

	if err := f.ledger.Approve(tokenA, trader, router.Address(), big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	out, err := router.ExactInputSingle(ctx, trader, ExactInputSingleParams{
		TokenIn:   tokenA,
		TokenOut:  tokenB,
		Fee:       testFee,
		Recipient: trader,
		AmountIn:  big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Cmp(big.NewInt(997)) != 0 {
		t.Fatalf("expected 997 out at price 1, got %s", out)
	}

	owed0, owed1, err := f.market.Positions().Owed(res.PositionID)
	if err != nil {
		t.Fatalf("owed: %v", err)
	}
	if owed0.Cmp(big.NewInt(3)) != 0 || owed1.Sign() != 0 {
		t.Fatalf("unexpected owed fees: %s/%s", owed0, owed1)
	}

	if _, _, err := f.market.Positions().Collect(ctx, trader, CollectParams{PositionID: res.PositionID, Recipient: trader}); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected not approved, got %v", err)
	}
	before := f.ledger.BalanceOf(tokenA, vault)
	got0, got1, err := f.market.Positions().Collect(ctx, lp, CollectParams{PositionID: res.PositionID, Recipient: vault, Amount0Max: MaxAmount(), Amount1Max: MaxAmount()})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got0.Cmp(big.NewInt(3)) != 0 || got1.Sign() != 0 {
		t.Fatalf("unexpected collected: %s/%s", got0, got1)
	}
	if diff := new(big.Int).Sub(f.ledger.BalanceOf(tokenA, vault), before); diff.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("vault received %s", diff)
	}
}

func TestSwapSlippage(t *testing.T) {
	f := newFixture(t)
	f.mint(t, lp)
	router := f.market.Router()

	if err := f.ledger.Approve(tokenB, trader, router.Address(), big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := router.ExactInputSingle(context.Background(), trader, ExactInputSingleParams{
		TokenIn:          tokenB,
		TokenOut:         tokenA,
		Fee:              testFee,
		Recipient:        trader,
		AmountIn:         big.NewInt(1000),
		AmountOutMinimum: big.NewInt(998),
	})
	if !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected slippage, got %v", err)
	}
}

type receiverFunc func(ctx context.Context, manager, operator, from common.Address, id uint64) error

func (f receiverFunc) OnPositionReceived(ctx context.Context, manager, operator, from common.Address, id uint64) error {
	return f(ctx, manager, operator, from, id)
}

func TestSafeTransferFromCallsReceiver(t *testing.T) {
	f := newFixture(t)
	res := f.mint(t, lp)
	pm := f.market.Positions()
	ctx := context.Background()

	if err := f.ledger.DeployCode(vault); err != nil {
		t.Fatalf("deploy vault: %v", err)
	}
	if err := pm.SafeTransferFrom(ctx, lp, lp, vault, res.PositionID); !errors.Is(err, ErrNotReceiver) {
		t.Fatalf("expected not receiver, got %v", err)
	}

	rejected := errors.New("nope")
	f.market.RegisterReceiver(vault, receiverFunc(func(_ context.Context, manager, _, _ common.Address, _ uint64) error {
		if manager != pm.Address() {
			t.Fatalf("hook called by %s", manager.Hex())
		}
		owner, _ := pm.OwnerOf(ctx, res.PositionID)
		if owner != vault {
			t.Fatalf("owner not updated before hook: %s", owner.Hex())
		}
		return rejected
	}))

	snap := f.ledger.Snapshot()
	err := pm.SafeTransferFrom(ctx, lp, lp, vault, res.PositionID)
	if !errors.Is(err, ErrReceiverRejected) || !errors.Is(err, rejected) {
		t.Fatalf("expected receiver rejection, got %v", err)
	}
	if err := f.ledger.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if owner, _ := pm.OwnerOf(ctx, res.PositionID); owner != lp {
		t.Fatalf("owner not restored: %s", owner.Hex())
	}

	if err := pm.SafeTransferFrom(ctx, trader, lp, trader, res.PositionID); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected not approved, got %v", err)
	}
}

func TestRevertUndoesMarketState(t *testing.T) {
	f := newFixture(t)
	snap := f.ledger.Snapshot()
	res := f.mint(t, lp)
	if err := f.ledger.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if _, err := f.market.Positions().Position(context.Background(), res.PositionID); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected position gone, got %v", err)
	}
	again := f.mint(t, lp)
	if again.PositionID != res.PositionID {
		t.Fatalf("position id not reused after revert: %d", again.PositionID)
	}
}

func TestPoolAddressMatchesCanonicalDerivation(t *testing.T) {
	factory := common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	key, err := sortedKey(weth, usdc, 500)
	if err != nil {
		t.Fatalf("sorted key: %v", err)
	}
	want := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	if got := computePoolAddress(factory, key); got != want {
		t.Fatalf("pool address %s, want %s", got.Hex(), want.Hex())
	}
}

func TestSingleSidedMintStaysWithinDesired(t *testing.T) {
	f := newFixture(t)
	pm := f.market.Positions()
	amount := new(big.Int).Mul(big.NewInt(990_000), big.NewInt(1e18))
	amount.Add(amount, big.NewInt(7))
	if err := f.ledger.Approve(tokenA, lp, pm.Address(), amount); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// pool sits at tick 0, the lower bound, so only token0 backs the range
	res, err := pm.Mint(context.Background(), lp, MintParams{
		Token0:         tokenA,
		Token1:         tokenB,
		Fee:            testFee,
		TickLower:      0,
		TickUpper:      pricing.MaxUsableTick(60),
		Amount0Desired: amount,
		Recipient:      lp,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if res.Amount1.Sign() != 0 {
		t.Fatalf("expected no token1, got %s", res.Amount1)
	}
	if res.Amount0.Cmp(amount) > 0 {
		t.Fatalf("pulled %s above desired %s", res.Amount0, amount)
	}
	// rounding leaves at most dust behind
	if dust := new(big.Int).Sub(amount, res.Amount0); dust.Cmp(big.NewInt(1e6)) > 0 {
		t.Fatalf("left %s unminted", dust)
	}
}
