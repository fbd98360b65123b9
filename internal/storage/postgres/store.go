package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"pasanaco/internal/model"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS pool_events (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	pool        TEXT NOT NULL,
	asset       TEXT NOT NULL,
	participant TEXT NOT NULL,
	amount      NUMERIC(78, 0),
	turn        BIGINT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pool_state (
	name       TEXT PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_transfers (
	chain_id     BIGINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	log_index    BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	block_hash   TEXT NOT NULL,
	token        TEXT NOT NULL,
	from_address TEXT NOT NULL,
	to_address   TEXT NOT NULL,
	amount       NUMERIC(78, 0) NOT NULL,
	direction    TEXT NOT NULL,
	removed      BOOLEAN NOT NULL,
	block_ts     BIGINT NOT NULL,
	PRIMARY KEY (chain_id, tx_hash, log_index)
);
`

// Store provides Postgres persistence for the pool journal, snapshots and
// indexed transfers.
type Store struct {
	pool *pgxpool.Pool
}

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

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutEvents inserts pool events; replays of the same event id are ignored.
func (s *Store) PutEvents(ctx context.Context, events []model.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return fmt.Errorf("event id %q: %w", e.ID, err)
		}
		occurredAt, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return fmt.Errorf("event %s timestamp: %w", e.ID, err)
		}
		amount, err := numeric(e.Amount)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
		batch.Queue(`
			INSERT INTO pool_events (id, kind, pool, asset, participant, amount, turn, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`,
			id,
			string(e.Kind),
			e.Pool,
			e.Asset,
			e.Participant,
			amount,
			int64(e.Turn),
			occurredAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutTransfers upserts indexed transfers keyed by (chain, tx, log index).
func (s *Store) PutTransfers(ctx context.Context, transfers []model.TransferRecord) error {
	if len(transfers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range transfers {
		amount, err := numeric(t.Amount)
		if err != nil {
			return fmt.Errorf("transfer %s:%d: %w", t.TxHash, t.LogIndex, err)
		}
		batch.Queue(`
			INSERT INTO pool_transfers (
				chain_id, tx_hash, log_index, block_number, block_hash, token,
				from_address, to_address, amount, direction, removed, block_ts
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (chain_id, tx_hash, log_index)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				block_hash = EXCLUDED.block_hash,
				removed = EXCLUDED.removed
		`,
			int64(t.ChainID),
			t.TxHash,
			int64(t.LogIndex),
			int64(t.BlockNumber),
			t.BlockHash,
			t.Token,
			t.From,
			t.To,
			amount,
			string(t.Direction),
			t.Removed,
			int64(t.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range transfers {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot returns the latest snapshot stored under name.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (model.PoolSnapshot, bool, error) {
	if name == "" {
		return model.PoolSnapshot{}, false, fmt.Errorf("state name required")
	}
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM pool_state WHERE name=$1`, name)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, err
	}
	var snap model.PoolSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// SaveSnapshot upserts the snapshot stored under name.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap model.PoolSnapshot) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_state (name, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, updated_at = now()
	`, name, raw)
	return err
}

// numeric converts a base-unit decimal string; empty maps to NULL.
func numeric(value string) (pgtype.Numeric, error) {
	if value == "" {
		return pgtype.Numeric{}, nil
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return pgtype.Numeric{}, fmt.Errorf("invalid amount %q", value)
	}
	return pgtype.Numeric{Int: n, Valid: true}, nil
}
