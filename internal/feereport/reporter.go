package feereport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad/internal/model"
)

// TotalsStore is where merged totals are read from and written to.
type TotalsStore interface {
	LoadFeeTotals(ctx context.Context, chainID uint64, registry string, positionID uint64) (model.PositionFeeTotals, bool, error)
	UpsertFeeTotals(ctx context.Context, totals []model.PositionFeeTotals) error
}

// Config controls a report run. A non-zero RecomputeFrom rebuilds totals from that
// timestamp and overwrites stored rows instead of adding to them.
type Config struct {
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Summary counts what a run did.
type Summary struct {
	Total     int
	Applied   int
	Skipped   int
	Failed    int
	Cursor    model.ReportCursor
	Positions []model.PositionFeeTotals
}

// Reporter reads a typed events JSONL stream and maintains fee totals per position.
type Reporter struct {
	cfg      Config
	store    TotalsStore
	decimals DecimalsResolver
	logger   *zap.Logger
}

// NewReporter builds a Reporter. decimals may be nil, in which case human-readable
// amounts are left empty.
func NewReporter(cfg Config, store TotalsStore, decimals DecimalsResolver, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Reporter{cfg: cfg, store: store, decimals: decimals, logger: logger}
}

// Run aggregates the events file at inputPath.
func (r *Reporter) Run(ctx context.Context, inputPath string) (Summary, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return r.RunReader(ctx, file)
}

// RunReader aggregates typed event lines from in. Events at or before the stored
// (block, log index) cursor are skipped, so reruns over the same file add nothing.
func (r *Reporter) RunReader(ctx context.Context, in io.Reader) (Summary, error) {
	if r.store == nil {
		return Summary{}, fmt.Errorf("totals store is nil")
	}

	start, err := r.loadStartCursor(ctx)
	if err != nil {
		return Summary{}, err
	}

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	accumulators := make(map[string]*Accumulator)
	summary := Summary{Cursor: start}

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		summary.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			summary.Failed++
			r.logger.Warn("decode typed event", zap.Error(err))
			continue
		}
		if start.Covers(record.BlockNumber, record.LogIndex, record.Timestamp) || !isFeesCollected(record.EventName) {
			summary.Skipped++
			continue
		}

		fees, err := decodeFees(record)
		if err == nil {
			key := positionKey(record.ChainID, record.Address, fees.PositionID)
			acc := accumulators[key]
			if acc == nil {
				acc = NewAccumulator(record, fees.PositionID)
				accumulators[key] = acc
			}
			err = acc.AddFees(record, fees)
		}
		if err != nil {
			summary.Failed++
			r.logger.Warn("aggregate fees", zap.Error(err), zap.String("registry", record.Address), zap.Uint64("block_number", record.BlockNumber))
			continue
		}

		summary.Applied++
		summary.Cursor = summary.Cursor.Advance(record.BlockNumber, record.LogIndex, record.Timestamp)
	}
	if err := scanner.Err(); err != nil {
		return Summary{}, fmt.Errorf("scan input: %w", err)
	}

	totals, err := r.mergeStored(ctx, accumulators)
	if err != nil {
		return Summary{}, err
	}
	for start := 0; start < len(totals); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(totals))
		if err := r.store.UpsertFeeTotals(ctx, totals[start:end]); err != nil {
			return Summary{}, fmt.Errorf("upsert fee totals: %w", err)
		}
	}
	if r.cfg.StateStore != nil {
		if err := r.cfg.StateStore.Save(ctx, summary.Cursor); err != nil {
			return Summary{}, fmt.Errorf("save state: %w", err)
		}
	}
	summary.Positions = totals

	r.logger.Info("fee report complete",
		zap.Int("total", summary.Total),
		zap.Int("applied", summary.Applied),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("positions", len(totals)),
	)
	return summary, nil
}

func (r *Reporter) mergeStored(ctx context.Context, accumulators map[string]*Accumulator) ([]model.PositionFeeTotals, error) {
	keys := make([]string, 0, len(accumulators))
	for key := range accumulators {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]model.PositionFeeTotals, 0, len(keys))
	for _, key := range keys {
		acc := accumulators[key]
		if r.cfg.RecomputeFrom == 0 {
			stored, ok, err := r.store.LoadFeeTotals(ctx, acc.ChainID, acc.Registry, acc.PositionID)
			if err != nil {
				return nil, fmt.Errorf("load fee totals: %w", err)
			}
			if ok {
				if err := acc.Merge(stored); err != nil {
					return nil, err
				}
			}
		}
		totals := acc.Totals()
		totals.Amount0Human = r.humanAmount(ctx, totals.Token0, totals.Amount0)
		totals.Amount1Human = r.humanAmount(ctx, totals.Token1, totals.Amount1)
		out = append(out, totals)
	}
	return out, nil
}

func (r *Reporter) humanAmount(ctx context.Context, token, raw string) *string {
	if r.decimals == nil || !common.IsHexAddress(token) {
		return nil
	}
	decimals, err := r.decimals.Decimals(ctx, common.HexToAddress(token))
	if err != nil {
		r.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
		return nil
	}
	text, err := formatTokenAmount(raw, decimals)
	if err != nil {
		return nil
	}
	return &text
}

func (r *Reporter) loadStartCursor(ctx context.Context) (model.ReportCursor, error) {
	if r.cfg.RecomputeFrom > 0 {
		return model.ReportCursor{Timestamp: r.cfg.RecomputeFrom - 1}, nil
	}
	if r.cfg.StateStore == nil {
		return model.ReportCursor{}, nil
	}
	last, _, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return model.ReportCursor{}, fmt.Errorf("load state: %w", err)
	}
	return last, nil
}

func positionKey(chainID uint64, registry string, positionID uint64) string {
	return fmt.Sprintf("%d:%s:%020d", chainID, strings.ToLower(registry), positionID)
}
