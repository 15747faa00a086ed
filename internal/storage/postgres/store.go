package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"launchpad/internal/model"
	"launchpad/internal/storage"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS raw_logs (
	chain_id BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	block_hash TEXT NOT NULL,
	address TEXT NOT NULL,
	topics TEXT[] NOT NULL,
	data TEXT NOT NULL,
	block_ts BIGINT NOT NULL,
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS launches (
	chain_id BIGINT NOT NULL,
	asset TEXT NOT NULL,
	position_id BIGINT NOT NULL,
	creator TEXT NOT NULL,
	name TEXT NOT NULL,
	symbol TEXT NOT NULL,
	supply NUMERIC NOT NULL,
	recipient TEXT NOT NULL,
	recipient_amount NUMERIC NOT NULL,
	block_number BIGINT NOT NULL,
	tx_hash TEXT NOT NULL,
	block_ts BIGINT NOT NULL,
	PRIMARY KEY (chain_id, asset)
);
CREATE TABLE IF NOT EXISTS position_locks (
	chain_id BIGINT NOT NULL,
	registry TEXT NOT NULL,
	position_id BIGINT NOT NULL,
	owner TEXT NOT NULL,
	unlock_time BIGINT NOT NULL DEFAULT 0,
	fee_cut INTEGER NOT NULL DEFAULT 0,
	withdrawn BOOLEAN NOT NULL DEFAULT false,
	updated_ts BIGINT NOT NULL,
	PRIMARY KEY (chain_id, registry, position_id)
);
CREATE TABLE IF NOT EXISTS position_fee_totals (
	chain_id BIGINT NOT NULL,
	registry TEXT NOT NULL,
	position_id BIGINT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	collections BIGINT NOT NULL,
	amount0 NUMERIC NOT NULL,
	amount1 NUMERIC NOT NULL,
	collector_share0 NUMERIC NOT NULL,
	collector_share1 NUMERIC NOT NULL,
	owner_share0 NUMERIC NOT NULL,
	owner_share1 NUMERIC NOT NULL,
	amount0_human TEXT,
	amount1_human TEXT,
	first_block BIGINT NOT NULL,
	last_block BIGINT NOT NULL,
	last_collected_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, registry, position_id)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	last_block BIGINT NOT NULL DEFAULT 0,
	last_log_index BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for indexed launchpad data.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Sink = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PutLogBatch stores raw logs, ignoring ones already present.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		batch.Queue(`
			INSERT INTO raw_logs (chain_id, block_number, tx_hash, log_index, block_hash, address, topics, data, block_ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT DO NOTHING
		`,
			int64(log.ChainID),
			int64(log.BlockNumber),
			log.TxHash,
			int64(log.LogIndex),
			log.BlockHash,
			log.Address,
			log.Topics,
			log.Data,
			int64(log.Timestamp),
		)
	}
	return s.sendBatch(ctx, batch)
}

// PutTypedEvents projects typed events onto the launches and position_locks tables.
func (s *Store) PutTypedEvents(ctx context.Context, events []model.TypedEvent) error {
	batch := &pgx.Batch{}
	for _, event := range events {
		change := storage.Project(event)
		lock := change.Lock
		switch change.Kind {
		case storage.ChangeLaunch:
			l := change.Launch
			batch.Queue(`
				INSERT INTO launches (
					chain_id, asset, position_id, creator, name, symbol, supply, recipient, recipient_amount,
					block_number, tx_hash, block_ts
				) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9::numeric, $10, $11, $12)
				ON CONFLICT (chain_id, asset) DO NOTHING
			`,
				int64(l.ChainID), l.Asset, int64(l.PositionID), l.Creator, l.Name, l.Symbol, l.Supply,
				l.Recipient, l.RecipientAmount, int64(l.BlockNumber), l.TxHash, int64(l.Timestamp),
			)
		case storage.ChangeLock:
			batch.Queue(`
				INSERT INTO position_locks (chain_id, registry, position_id, owner, unlock_time, fee_cut, withdrawn, updated_ts)
				VALUES ($1, $2, $3, $4, $5, $6, false, $7)
				ON CONFLICT (chain_id, registry, position_id)
				DO UPDATE SET
					owner = EXCLUDED.owner,
					unlock_time = EXCLUDED.unlock_time,
					fee_cut = EXCLUDED.fee_cut,
					updated_ts = GREATEST(position_locks.updated_ts, EXCLUDED.updated_ts)
			`,
				int64(lock.ChainID), lock.Registry, int64(lock.PositionID), lock.Owner,
				int64(lock.UnlockTime), int64(lock.FeeCut), int64(lock.UpdatedAt),
			)
		case storage.ChangeLockOwner:
			batch.Queue(`
				UPDATE position_locks SET owner = $4, updated_ts = $5
				WHERE chain_id = $1 AND registry = $2 AND position_id = $3
			`,
				int64(lock.ChainID), lock.Registry, int64(lock.PositionID), lock.Owner, int64(lock.UpdatedAt),
			)
		case storage.ChangeWithdrawn:
			batch.Queue(`
				UPDATE position_locks SET withdrawn = true, updated_ts = $4
				WHERE chain_id = $1 AND registry = $2 AND position_id = $3
			`,
				int64(lock.ChainID), lock.Registry, int64(lock.PositionID), int64(lock.UpdatedAt),
			)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.sendBatch(ctx, batch)
}

// LoadFeeTotals returns the stored totals of a position.
func (s *Store) LoadFeeTotals(ctx context.Context, chainID uint64, registry string, positionID uint64) (model.PositionFeeTotals, bool, error) {
	out := model.PositionFeeTotals{ChainID: chainID, Registry: registry, PositionID: positionID}
	var collections, firstBlock, lastBlock, lastTs int64
	row := s.pool.QueryRow(ctx, `
		SELECT token0, token1, collections, amount0::text, amount1::text,
			collector_share0::text, collector_share1::text, owner_share0::text, owner_share1::text,
			first_block, last_block, last_collected_ts
		FROM position_fee_totals
		WHERE chain_id = $1 AND registry = $2 AND position_id = $3
	`, int64(chainID), registry, int64(positionID))
	err := row.Scan(
		&out.Token0, &out.Token1, &collections, &out.Amount0, &out.Amount1,
		&out.CollectorShare0, &out.CollectorShare1, &out.OwnerShare0, &out.OwnerShare1,
		&firstBlock, &lastBlock, &lastTs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PositionFeeTotals{}, false, nil
		}
		return model.PositionFeeTotals{}, false, err
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
	batch := &pgx.Batch{}
	for _, t := range totals {
		batch.Queue(`
			INSERT INTO position_fee_totals (
				chain_id, registry, position_id, token0, token1, collections,
				amount0, amount1, collector_share0, collector_share1, owner_share0, owner_share1,
				amount0_human, amount1_human, first_block, last_block, last_collected_ts, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12::numeric,$13,$14,$15,$16,$17,now())
			ON CONFLICT (chain_id, registry, position_id)
			DO UPDATE SET
				collections = EXCLUDED.collections,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				collector_share0 = EXCLUDED.collector_share0,
				collector_share1 = EXCLUDED.collector_share1,
				owner_share0 = EXCLUDED.owner_share0,
				owner_share1 = EXCLUDED.owner_share1,
				amount0_human = EXCLUDED.amount0_human,
				amount1_human = EXCLUDED.amount1_human,
				first_block = LEAST(position_fee_totals.first_block, EXCLUDED.first_block),
				last_block = EXCLUDED.last_block,
				last_collected_ts = EXCLUDED.last_collected_ts,
				updated_at = now()
		`,
			int64(t.ChainID), t.Registry, int64(t.PositionID), t.Token0, t.Token1, int64(t.Collections),
			t.Amount0, t.Amount1, t.CollectorShare0, t.CollectorShare1, t.OwnerShare0, t.OwnerShare1,
			t.Amount0Human, t.Amount1Human, int64(t.FirstBlock), int64(t.LastBlock), int64(t.LastCollectedAt),
		)
	}
	return s.sendBatch(ctx, batch)
}

// LoadState returns the report cursor stored under a name.
func (s *Store) LoadState(ctx context.Context, name string) (model.ReportCursor, bool, error) {
	if name == "" {
		return model.ReportCursor{}, false, fmt.Errorf("state name required")
	}
	var ts, block, logIndex int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts, last_block, last_log_index FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts, &block, &logIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReportCursor{}, false, nil
		}
		return model.ReportCursor{}, false, err
	}
	return model.ReportCursor{Timestamp: uint64(ts), BlockNumber: uint64(block), LogIndex: uint64(logIndex)}, true, nil
}

// SaveState upserts the report cursor for a name.
func (s *Store) SaveState(ctx context.Context, name string, cursor model.ReportCursor) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, last_block, last_log_index, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts,
			last_block = EXCLUDED.last_block,
			last_log_index = EXCLUDED.last_log_index,
			updated_at = now()
	`, name, int64(cursor.Timestamp), int64(cursor.BlockNumber), int64(cursor.LogIndex))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
