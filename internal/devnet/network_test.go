package devnet

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"launchpad/internal/events"
	"launchpad/internal/feereport"
	"launchpad/internal/indexer"
	"launchpad/internal/launch"
	"launchpad/internal/locker"
	"launchpad/internal/storage"
	"launchpad/internal/storage/sqlite"
)

var creator = common.HexToAddress("0x00000000000000000000000000000000000c0de1")

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := New(Config{StartTime: 1_700_000_000, FeeCut: 60}, nil)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return n
}

func scenario() Scenario {
	return Scenario{
		Request: launch.Request{
			Caller:          creator,
			Name:            "Devnet Token",
			Symbol:          "DEV",
			Supply:          units(1_000_000),
			FeeTier:         10000,
			InitialTick:     -207_000,
			Recipient:       creator,
			RecipientAmount: units(10_000),
		},
		MaxDepth:  10_000,
		Trades:    2,
		TradeSize: big.NewInt(1e14),
		Advance:   366 * 24 * time.Hour,
		Collect:   true,
		Withdraw:  true,
	}
}

func TestScenarioLifecycle(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()

	out, err := n.Run(ctx, scenario())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Trades != 2 || !out.Withdrawn || out.Collection == nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	// every buy pays 1% of 1e14 in reserve to the only position
	c := out.Collection
	if c.Amount1.Cmp(big.NewInt(2e12)) != 0 {
		t.Fatalf("reserve fees %s", c.Amount1)
	}
	if c.CollectorShare1.Cmp(big.NewInt(12e10)) != 0 || c.OwnerShare1.Cmp(big.NewInt(188e10)) != 0 {
		t.Fatalf("unexpected split %s/%s", c.OwnerShare1, c.CollectorShare1)
	}
	if c.Amount0.Sign() <= 0 {
		t.Fatalf("expected asset fees from the sells")
	}
	if got := n.Ledger.BalanceOf(n.Config().Reserve, n.Config().Collector); got.Cmp(big.NewInt(12e10)) != 0 {
		t.Fatalf("collector reserve balance %s", got)
	}

	holder, err := n.Market.Positions().OwnerOf(ctx, out.Launch.PositionID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if holder != creator {
		t.Fatalf("position held by %s after withdraw", holder.Hex())
	}
	if _, ok := n.Registry.Record(out.Launch.PositionID); ok {
		t.Fatalf("lock record survived withdraw")
	}
}

func TestScenarioWithdrawBeforeUnlockFails(t *testing.T) {
	n := newNetwork(t)
	s := scenario()
	s.Trades = 0
	s.Collect = false
	s.Advance = time.Hour

	_, err := n.Run(context.Background(), s)
	if !errors.Is(err, locker.ErrStillLocked) {
		t.Fatalf("expected still locked, got %v", err)
	}
}

func TestIndexAndReportDevnetLogs(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()
	out, err := n.Run(ctx, scenario())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	store, err := sqlite.Open(filepath.Join(dir, "launchpad.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	decoder, err := events.NewDecoder(events.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:  1,
		Addresses:  n.ContractAddresses(),
		BatchSize:  2,
		MaxRetries: 1,
	}, NewLogSource(n.Ledger), storage.Multi{storage.NewJSONLStorage("", eventsPath), store}, decoder, nil)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("index: %v", err)
	}
	// TokenCreated, PositionLocked, FeesCollected, PositionWithdrawn
	if stats := runner.Stats(); stats.Decoded != 4 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	registry := n.Config().Registry.Hex()
	lock, ok, err := store.Lock(ctx, n.Ledger.ChainID(), registry, out.Launch.PositionID)
	if err != nil || !ok {
		t.Fatalf("lock row missing: ok=%v err=%v", ok, err)
	}
	if !lock.Withdrawn || lock.FeeCut != 60 || lock.Owner != creator.Hex() {
		t.Fatalf("unexpected lock row: %+v", lock)
	}
	launches, err := store.Launches(ctx, n.Ledger.ChainID())
	if err != nil || len(launches) != 1 || launches[0].Asset != out.Launch.Asset.Hex() {
		t.Fatalf("unexpected launches %+v err=%v", launches, err)
	}

	reporter := feereport.NewReporter(feereport.Config{}, store, NewDecimals(n.Ledger), nil)
	summary, err := reporter.Run(ctx, eventsPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if summary.Applied != 1 || len(summary.Positions) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	totals := summary.Positions[0]
	if totals.Amount1 != "2000000000000" || totals.CollectorShare1 != "120000000000" {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if totals.Amount1Human == nil || *totals.Amount1Human != "0.000002" {
		t.Fatalf("unexpected human amount %v", totals.Amount1Human)
	}
}

func TestLogSourceOnlyServesSealedBlocks(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()
	src := NewLogSource(n.Ledger)

	latest, err := src.LatestBlockNumber(ctx)
	if err != nil || latest != 1 {
		t.Fatalf("latest %d err=%v", latest, err)
	}
	if _, err := src.BlockTimestamp(ctx, latest+1); err == nil {
		t.Fatalf("expected error for the open block")
	}
	ts, err := src.BlockTimestamp(ctx, 1)
	if err != nil || ts != 1_700_000_000 {
		t.Fatalf("block 1 time %d err=%v", ts, err)
	}

	if _, err := n.Run(ctx, scenario()); err != nil {
		t.Fatalf("run: %v", err)
	}
	parsed, err := events.LaunchpadABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	topic := parsed.Events[events.NameFeesCollected].ID
	latest, _ = src.LatestBlockNumber(ctx)
	logs, err := src.FilterLogs(ctx, 1, latest, nil, []common.Hash{topic})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(logs) != 1 || logs[0].Address != n.Config().Registry {
		t.Fatalf("unexpected fees logs: %+v", logs)
	}
}
