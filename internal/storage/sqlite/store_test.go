package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"launchpad/internal/model"
)

const (
	chainID  = uint64(31337)
	registry = "0x00000000000000000000000000000000000090a2"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "launchpad.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func lockEvent(block uint64, decoded interface{}, name string) model.TypedEvent {
	return model.TypedEvent{
		ChainID:     chainID,
		BlockNumber: block,
		TxHash:      "0xabc",
		Address:     registry,
		EventName:   name,
		Timestamp:   1_700_000_000 + block,
		Decoded:     decoded,
	}
}

func TestLockLifecycleProjection(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)

	events := []model.TypedEvent{
		lockEvent(1, model.PositionLockedData{PositionID: 4, Owner: "0xaa", UnlockTime: 1_800_000_000, FeeCut: 60}, "PositionLocked"),
		lockEvent(2, model.LockOwnerChangedData{PositionID: 4, PreviousOwner: "0xaa", NewOwner: "0xbb"}, "LockOwnerChanged"),
	}
	if err := store.PutTypedEvents(ctx, events); err != nil {
		t.Fatalf("put events: %v", err)
	}

	lock, ok, err := store.Lock(ctx, chainID, registry, 4)
	if err != nil || !ok {
		t.Fatalf("lock not found: ok=%v err=%v", ok, err)
	}
	if lock.Owner != "0xbb" || lock.FeeCut != 60 || lock.UnlockTime != 1_800_000_000 || lock.Withdrawn {
		t.Fatalf("unexpected lock: %+v", lock)
	}

	withdrawn := lockEvent(3, model.PositionWithdrawnData{PositionID: 4, Owner: "0xbb"}, "PositionWithdrawn")
	if err := store.PutTypedEvents(ctx, []model.TypedEvent{withdrawn}); err != nil {
		t.Fatalf("put withdrawn: %v", err)
	}
	lock, _, err = store.Lock(ctx, chainID, registry, 4)
	if err != nil {
		t.Fatalf("reload lock: %v", err)
	}
	if !lock.Withdrawn || lock.UpdatedAt != 1_700_000_003 {
		t.Fatalf("expected withdrawn lock, got %+v", lock)
	}
}

func TestLaunchInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)

	created := lockEvent(7, model.TokenCreatedData{
		Asset:           "0x00000000000000000000000000000000000000a1",
		PositionID:      1,
		Creator:         "0xcc",
		Name:            "Test",
		Symbol:          "TST",
		Supply:          "1000000000000000000000000",
		Recipient:       "0xdd",
		RecipientAmount: "10000000000000000000000",
	}, "TokenCreated")
	for i := 0; i < 2; i++ {
		if err := store.PutTypedEvents(ctx, []model.TypedEvent{created}); err != nil {
			t.Fatalf("put launch: %v", err)
		}
	}

	launches, err := store.Launches(ctx, chainID)
	if err != nil {
		t.Fatalf("launches: %v", err)
	}
	if len(launches) != 1 {
		t.Fatalf("expected one launch, got %d", len(launches))
	}
	if launches[0].Supply != "1000000000000000000000000" || launches[0].BlockNumber != 7 {
		t.Fatalf("unexpected launch: %+v", launches[0])
	}
}

func TestRawLogsIgnoreDuplicates(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)

	logs := []model.LogRecord{{
		ChainID:     chainID,
		BlockNumber: 5,
		TxHash:      "0x01",
		LogIndex:    0,
		BlockHash:   "0x02",
		Address:     registry,
		Topics:      []string{"0x03"},
		Data:        "0x",
		Timestamp:   1,
	}}
	if err := store.PutLogBatch(ctx, logs); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.PutLogBatch(ctx, logs); err != nil {
		t.Fatalf("second put: %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM raw_logs`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 raw log, got %d", count)
	}
}

func TestFeeTotalsAndState(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)

	if _, ok, err := store.LoadFeeTotals(ctx, chainID, registry, 9); err != nil || ok {
		t.Fatalf("expected no totals, ok=%v err=%v", ok, err)
	}

	human := "1.5"
	totals := model.PositionFeeTotals{
		ChainID: chainID, Registry: registry, PositionID: 9,
		Token0: "0xa1", Token1: "0xb1", Collections: 2,
		Amount0: "1500000000000000000", Amount1: "0",
		CollectorShare0: "90000000000000000", CollectorShare1: "0",
		OwnerShare0: "1410000000000000000", OwnerShare1: "0",
		Amount0Human: &human,
		FirstBlock:   10, LastBlock: 20, LastCollectedAt: 1_700_000_020,
	}
	if err := store.UpsertFeeTotals(ctx, []model.PositionFeeTotals{totals}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	totals.FirstBlock = 15
	totals.Collections = 3
	if err := store.UpsertFeeTotals(ctx, []model.PositionFeeTotals{totals}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, ok, err := store.LoadFeeTotals(ctx, chainID, registry, 9)
	if err != nil || !ok {
		t.Fatalf("load totals: ok=%v err=%v", ok, err)
	}
	if got.Collections != 3 || got.FirstBlock != 10 || got.Amount0 != "1500000000000000000" {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if got.Amount0Human == nil || *got.Amount0Human != "1.5" || got.Amount1Human != nil {
		t.Fatalf("unexpected human amounts: %v %v", got.Amount0Human, got.Amount1Human)
	}

	if _, ok, err := store.LoadState(ctx, "fees"); err != nil || ok {
		t.Fatalf("expected empty state, ok=%v err=%v", ok, err)
	}
	want := model.ReportCursor{Timestamp: 42, BlockNumber: 7, LogIndex: 3}
	if err := store.SaveState(ctx, "fees", want); err != nil {
		t.Fatalf("save state: %v", err)
	}
	want.LogIndex = 4
	if err := store.SaveState(ctx, "fees", want); err != nil {
		t.Fatalf("update state: %v", err)
	}
	cursor, ok, err := store.LoadState(ctx, "fees")
	if err != nil || !ok || cursor != want {
		t.Fatalf("unexpected state: cursor=%+v ok=%v err=%v", cursor, ok, err)
	}
}
