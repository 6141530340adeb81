package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TicksTable is the table the tick recorder appends to.
const TicksTable = "live_ticks"

// SchemaStatements create the tick table. They are idempotent.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS live_ticks (
		id                 UUID        NOT NULL,
		ts                 TIMESTAMPTZ NOT NULL,
		symbol             TEXT        NOT NULL,
		price              NUMERIC     NOT NULL,
		latest_decision_id BIGINT,
		latest_decision    TEXT,
		received_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE INDEX IF NOT EXISTS live_ticks_ts_idx ON live_ticks (ts DESC)`,
}

const hypertableStatement = `SELECT create_hypertable('live_ticks', 'ts', if_not_exists => TRUE, migrate_data => TRUE)`

// Conn is the subset of a pool EnsureSchema needs.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsureSchema creates the tick table and, when the timescaledb extension
// is installed, turns it into a hypertable.
func EnsureSchema(ctx context.Context, db Conn) error {
	for _, stmt := range SchemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var timescale bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')`).Scan(&timescale)
	if err != nil {
		return fmt.Errorf("check timescaledb extension: %w", err)
	}
	if !timescale {
		return nil
	}

	if _, err := db.Exec(ctx, hypertableStatement); err != nil {
		return fmt.Errorf("create hypertable: %w", err)
	}
	return nil
}
