package db

import (
	"fmt"
)

const sqlitePragmas = `PRAGMA journal_mode=WAL;`

var tables = []string{
	`CREATE TABLE IF NOT EXISTS order_events (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    order_type TEXT NOT NULL,
    status TEXT NOT NULL,
    submitted_quantity TEXT NOT NULL,
    submitted_price TEXT NOT NULL,
    executed_quantity TEXT NOT NULL,
    executed_price TEXT NOT NULL,
    currency TEXT NOT NULL,
    msg TEXT NOT NULL,
    updated_at BIGINT NOT NULL,
    received_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id, received_at)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
    symbol TEXT PRIMARY KEY,
    flags INTEGER NOT NULL,
    periods TEXT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
}

// ApplyMigrations creates the journal tables when missing.
func ApplyMigrations(d *Database) error {
	if d.Driver == DriverSQLite {
		if _, err := d.DB.Exec(sqlitePragmas); err != nil {
			return fmt.Errorf("apply pragmas: %w", err)
		}
	}
	for _, stmt := range tables {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
