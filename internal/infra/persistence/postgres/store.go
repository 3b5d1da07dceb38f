// Package postgres stages the pending registration in a Postgres table, for
// kiosk deployments that share one database across devices.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"campreg/internal/infra/persistence/sqlstage"
	"campreg/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.StagingStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/campreg?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schema = `CREATE TABLE IF NOT EXISTS registrations (
	id TEXT PRIMARY KEY,
	slot INTEGER NOT NULL DEFAULT 1 UNIQUE CHECK (slot = 1),
	email TEXT NOT NULL,
	guardian_name TEXT NOT NULL,
	consent BOOLEAN NOT NULL,
	selected_camps TEXT NOT NULL,
	personal_info TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`

// Store is a single-slot registration store backed by Postgres.
type Store struct {
	*sqlstage.Store
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN).
// Connectivity and schema are checked by Open.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, domain.StoreUnavailable("open", fmt.Errorf("open postgres: %w", err))
	}
	return &Store{Store: sqlstage.New(db, Dialect())}, nil
}

// Dialect describes Postgres to the shared staging implementation. The upsert
// takes a table lock so that two devices cannot both insert.
func Dialect() sqlstage.Dialect {
	return sqlstage.Dialect{
		Name: "postgres",
		Bind: func(n int) string { return fmt.Sprintf("$%d", n) },
		Lock: "LOCK TABLE registrations IN EXCLUSIVE MODE",
		Migrate: func(ctx context.Context, db *sql.DB) error {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				return fmt.Errorf("create registrations table: %w", err)
			}
			return nil
		},
	}
}
