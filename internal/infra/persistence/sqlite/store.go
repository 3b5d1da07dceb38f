// Package sqlite stages the pending registration in an on-device SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"campreg/internal/infra/persistence/sqlstage"
	"campreg/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultPath is used when no path is configured.
const DefaultPath = "campreg.db"

var _ domain.StagingStore = (*Store)(nil)

// Store is a single-slot registration store backed by SQLite.
type Store struct {
	*sqlstage.Store
	path string
}

// NewStore opens (creating if needed) the SQLite file at path. The schema is
// applied lazily by Open.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, domain.StoreUnavailable("open", fmt.Errorf("create dirs: %w", err))
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.StoreUnavailable("open", fmt.Errorf("open sqlite: %w", err))
	}
	// One connection keeps writers serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)
	return &Store{Store: sqlstage.New(db, Dialect()), path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Dialect describes SQLite to the shared staging implementation.
func Dialect() sqlstage.Dialect {
	return sqlstage.Dialect{
		Name: "sqlite",
		Bind: func(int) string { return "?" },
		Migrate: func(ctx context.Context, db *sql.DB) error {
			return ApplyMigrations(ctx, db, migrationFS, "migrations")
		},
	}
}
