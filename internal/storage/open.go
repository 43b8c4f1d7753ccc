package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the dedup database and creates the schema when missing.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the published_items table for the connection's dialect.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == DriverPostgres {
		schema = postgresSchema
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS published_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	permalink TEXT NOT NULL DEFAULT '',
	root_uri TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMP NOT NULL,
	UNIQUE (source, natural_key)
);
CREATE INDEX IF NOT EXISTS idx_published_items_published ON published_items(source, published_at DESC);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS published_items (
	id BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	permalink TEXT NOT NULL DEFAULT '',
	root_uri TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL,
	UNIQUE (source, natural_key)
);
CREATE INDEX IF NOT EXISTS idx_published_items_published ON published_items(source, published_at DESC);
`
