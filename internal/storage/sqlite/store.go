package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"launchpad/internal/model"
	"launchpad/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS raw_logs (
	chain_id INTEGER NOT NULL,
	block_number INTEGER NOT NULL,
	tx_hash TEXT NOT NULL,
	log_index INTEGER NOT NULL,
	block_hash TEXT NOT NULL,
	address TEXT NOT NULL,
	topics TEXT NOT NULL,
	data TEXT NOT NULL,
	block_ts INTEGER NOT NULL,
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS launches (
	chain_id INTEGER NOT NULL,
	asset TEXT NOT NULL,
	position_id INTEGER NOT NULL,
	creator TEXT NOT NULL,
	name TEXT NOT NULL,
	symbol TEXT NOT NULL,
	supply TEXT NOT NULL,
	recipient TEXT NOT NULL,
	recipient_amount TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	tx_hash TEXT NOT NULL,
	block_ts INTEGER NOT NULL,
	PRIMARY KEY (chain_id, asset)
);
CREATE TABLE IF NOT EXISTS position_locks (
	chain_id INTEGER NOT NULL,
	registry TEXT NOT NULL,
	position_id INTEGER NOT NULL,
	owner TEXT NOT NULL,
	unlock_time INTEGER NOT NULL DEFAULT 0,
	fee_cut INTEGER NOT NULL DEFAULT 0,
	withdrawn INTEGER NOT NULL DEFAULT 0,
	updated_ts INTEGER NOT NULL,
	PRIMARY KEY (chain_id, registry, position_id)
);
CREATE TABLE IF NOT EXISTS position_fee_totals (
	chain_id INTEGER NOT NULL,
	registry TEXT NOT NULL,
	position_id INTEGER NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	collections INTEGER NOT NULL,
	amount0 TEXT NOT NULL,
	amount1 TEXT NOT NULL,
	collector_share0 TEXT NOT NULL,
	collector_share1 TEXT NOT NULL,
	owner_share0 TEXT NOT NULL,
	owner_share1 TEXT NOT NULL,
	amount0_human TEXT,
	amount1_human TEXT,
	first_block INTEGER NOT NULL,
	last_block INTEGER NOT NULL,
	last_collected_ts INTEGER NOT NULL,
	PRIMARY KEY (chain_id, registry, position_id)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name TEXT PRIMARY KEY,
	last_processed_ts INTEGER NOT NULL,
	last_block INTEGER NOT NULL DEFAULT 0,
	last_log_index INTEGER NOT NULL DEFAULT 0
);
`

// Store persists launchpad data in one SQLite file.
type Store struct {
	db *sql.DB
}

var _ storage.Sink = (*Store)(nil)

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutLogBatch stores raw logs, ignoring ones already present.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO raw_logs (chain_id, block_number, tx_hash, log_index, block_hash, address, topics, data, block_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, log := range logs {
			topics, err := json.Marshal(log.Topics)
			if err != nil {
				return fmt.Errorf("marshal topics: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				int64(log.ChainID), int64(log.BlockNumber), log.TxHash, int64(log.LogIndex),
				log.BlockHash, log.Address, string(topics), log.Data, int64(log.Timestamp),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutTypedEvents projects typed events onto the launches and position_locks tables.
func (s *Store) PutTypedEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, event := range events {
			if err := applyChange(ctx, tx, storage.Project(event)); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyChange(ctx context.Context, tx *sql.Tx, change storage.Change) error {
	lock := change.Lock
	var err error
	switch change.Kind {
	case storage.ChangeLaunch:
		l := change.Launch
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO launches (
				chain_id, asset, position_id, creator, name, symbol, supply, recipient, recipient_amount,
				block_number, tx_hash, block_ts
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			int64(l.ChainID), l.Asset, int64(l.PositionID), l.Creator, l.Name, l.Symbol, l.Supply,
			l.Recipient, l.RecipientAmount, int64(l.BlockNumber), l.TxHash, int64(l.Timestamp),
		)
	case storage.ChangeLock:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO position_locks (chain_id, registry, position_id, owner, unlock_time, fee_cut, withdrawn, updated_ts)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT (chain_id, registry, position_id)
			DO UPDATE SET
				owner = excluded.owner,
				unlock_time = excluded.unlock_time,
				fee_cut = excluded.fee_cut,
				updated_ts = MAX(position_locks.updated_ts, excluded.updated_ts)
		`,
			int64(lock.ChainID), lock.Registry, int64(lock.PositionID), lock.Owner,
			int64(lock.UnlockTime), int64(lock.FeeCut), int64(lock.UpdatedAt),
		)
	case storage.ChangeLockOwner:
		_, err = tx.ExecContext(ctx, `
			UPDATE position_locks SET owner = ?, updated_ts = ?
			WHERE chain_id = ? AND registry = ? AND position_id = ?
		`, lock.Owner, int64(lock.UpdatedAt), int64(lock.ChainID), lock.Registry, int64(lock.PositionID))
	case storage.ChangeWithdrawn:
		_, err = tx.ExecContext(ctx, `
			UPDATE position_locks SET withdrawn = 1, updated_ts = ?
			WHERE chain_id = ? AND registry = ? AND position_id = ?
		`, int64(lock.UpdatedAt), int64(lock.ChainID), lock.Registry, int64(lock.PositionID))
	}
	return err
}

// Lock reads one lock row.
func (s *Store) Lock(ctx context.Context, chainID uint64, registry string, positionID uint64) (model.LockRecord, bool, error) {
	out := model.LockRecord{ChainID: chainID, Registry: registry, PositionID: positionID}
	var unlock, feeCut, updated int64
	var withdrawn int
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, unlock_time, fee_cut, withdrawn, updated_ts FROM position_locks
		WHERE chain_id = ? AND registry = ? AND position_id = ?
	`, int64(chainID), registry, int64(positionID)).Scan(&out.Owner, &unlock, &feeCut, &withdrawn, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LockRecord{}, false, nil
	}
	if err != nil {
		return model.LockRecord{}, false, err
	}
	out.UnlockTime, out.FeeCut, out.UpdatedAt = uint64(unlock), uint64(feeCut), uint64(updated)
	out.Withdrawn = withdrawn != 0
	return out, true, nil
}

// Launches lists stored launches of a chain ordered by block.
func (s *Store) Launches(ctx context.Context, chainID uint64) ([]model.LaunchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, position_id, creator, name, symbol, supply, recipient, recipient_amount, block_number, tx_hash, block_ts
		FROM launches WHERE chain_id = ? ORDER BY block_number, asset
	`, int64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LaunchRecord
	for rows.Next() {
		l := model.LaunchRecord{ChainID: chainID}
		var positionID, block, ts int64
		if err := rows.Scan(&l.Asset, &positionID, &l.Creator, &l.Name, &l.Symbol, &l.Supply,
			&l.Recipient, &l.RecipientAmount, &block, &l.TxHash, &ts); err != nil {
			return nil, err
		}
		l.PositionID, l.BlockNumber, l.Timestamp = uint64(positionID), uint64(block), uint64(ts)
		out = append(out, l)
	}
	return out, rows.Err()
}

// LoadFeeTotals returns the stored totals of a position.
func (s *Store) LoadFeeTotals(ctx context.Context, chainID uint64, registry string, positionID uint64) (model.PositionFeeTotals, bool, error) {
	out := model.PositionFeeTotals{ChainID: chainID, Registry: registry, PositionID: positionID}
	var collections, firstBlock, lastBlock, lastTs int64
	var human0, human1 sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT token0, token1, collections, amount0, amount1, collector_share0, collector_share1,
			owner_share0, owner_share1, amount0_human, amount1_human, first_block, last_block, last_collected_ts
		FROM position_fee_totals
		WHERE chain_id = ? AND registry = ? AND position_id = ?
	`, int64(chainID), registry, int64(positionID)).Scan(
		&out.Token0, &out.Token1, &collections, &out.Amount0, &out.Amount1,
		&out.CollectorShare0, &out.CollectorShare1, &out.OwnerShare0, &out.OwnerShare1,
		&human0, &human1, &firstBlock, &lastBlock, &lastTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PositionFeeTotals{}, false, nil
	}
	if err != nil {
		return model.PositionFeeTotals{}, false, err
	}
	if human0.Valid {
		out.Amount0Human = &human0.String
	}
	if human1.Valid {
		out.Amount1Human = &human1.String
	}
	out.Collections = uint64(collections)
	out.FirstBlock, out.LastBlock, out.LastCollectedAt = uint64(firstBlock), uint64(lastBlock), uint64(lastTs)
	return out, true, nil
}

// UpsertFeeTotals writes merged per-position fee totals.
func (s *Store) UpsertFeeTotals(ctx context.Context, totals []model.PositionFeeTotals) error {
	if len(totals) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range totals {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO position_fee_totals (
					chain_id, registry, position_id, token0, token1, collections,
					amount0, amount1, collector_share0, collector_share1, owner_share0, owner_share1,
					amount0_human, amount1_human, first_block, last_block, last_collected_ts
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (chain_id, registry, position_id)
				DO UPDATE SET
					collections = excluded.collections,
					amount0 = excluded.amount0,
					amount1 = excluded.amount1,
					collector_share0 = excluded.collector_share0,
					collector_share1 = excluded.collector_share1,
					owner_share0 = excluded.owner_share0,
					owner_share1 = excluded.owner_share1,
					amount0_human = excluded.amount0_human,
					amount1_human = excluded.amount1_human,
					first_block = MIN(position_fee_totals.first_block, excluded.first_block),
					last_block = excluded.last_block,
					last_collected_ts = excluded.last_collected_ts
			`,
				int64(t.ChainID), t.Registry, int64(t.PositionID), t.Token0, t.Token1, int64(t.Collections),
				t.Amount0, t.Amount1, t.CollectorShare0, t.CollectorShare1, t.OwnerShare0, t.OwnerShare1,
				nullString(t.Amount0Human), nullString(t.Amount1Human),
				int64(t.FirstBlock), int64(t.LastBlock), int64(t.LastCollectedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadState returns the report cursor stored under a name.
func (s *Store) LoadState(ctx context.Context, name string) (model.ReportCursor, bool, error) {
	if name == "" {
		return model.ReportCursor{}, false, fmt.Errorf("state name required")
	}
	var ts, block, logIndex int64
	err := s.db.QueryRowContext(ctx, `SELECT last_processed_ts, last_block, last_log_index FROM indexer_state WHERE name = ?`, name).Scan(&ts, &block, &logIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReportCursor{}, false, nil
	}
	if err != nil {
		return model.ReportCursor{}, false, err
	}
	return model.ReportCursor{Timestamp: uint64(ts), BlockNumber: uint64(block), LogIndex: uint64(logIndex)}, true, nil
}

// SaveState upserts the report cursor for a name.
func (s *Store) SaveState(ctx context.Context, name string, cursor model.ReportCursor) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, last_block, last_log_index) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			last_processed_ts = excluded.last_processed_ts,
			last_block = excluded.last_block,
			last_log_index = excluded.last_log_index
	`, name, int64(cursor.Timestamp), int64(cursor.BlockNumber), int64(cursor.LogIndex))
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
