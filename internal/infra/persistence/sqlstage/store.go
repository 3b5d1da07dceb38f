// Package sqlstage implements the single-pending-registration staging rule on
// top of database/sql. Dialect packages (sqlite, postgres) supply the driver,
// schema and locking statement; this package owns the read-existing-then-write
// sequence.
package sqlstage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"campreg/pkg/domain"

	"github.com/google/uuid"
)

// Table is the single collection holding the pending registration.
const Table = "registrations"

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string
	// Bind returns the placeholder for the n-th (1-based) argument.
	Bind func(n int) string
	// Lock, when non-empty, runs first inside the upsert transaction to take
	// a table-level write lock.
	Lock string
	// Migrate creates the registrations table idempotently.
	Migrate func(ctx context.Context, db *sql.DB) error
}

// Store is a domain.StagingStore over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu     sync.Mutex
	opened bool

	now   func() time.Time
	newID func() string
}

var _ domain.StagingStore = (*Store)(nil)

// New wraps db. The schema is not touched until Open.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// SetClock overrides the timestamp source (tests).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Open pings the database and applies the schema. Repeated calls are no-ops.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

func (s *Store) openLocked(ctx context.Context) error {
	if s.opened {
		return nil
	}
	if err := s.db.PingContext(ctx); err != nil {
		return domain.StoreUnavailable("open", fmt.Errorf("ping %s: %w", s.dialect.Name, err))
	}
	if s.dialect.Migrate != nil {
		if err := s.dialect.Migrate(ctx, s.db); err != nil {
			return domain.StoreUnavailable("open", err)
		}
	}
	s.opened = true
	return nil
}

// Upsert overwrites the existing row (keeping id and created_at) or inserts the
// first one. The process mutex plus the transaction make the sequence atomic;
// the slot column (defaulting to 1, unique) rejects a second row outright.
func (s *Store) Upsert(ctx context.Context, record domain.RegistrationRecord) (rec domain.StoredRecord, retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(ctx); err != nil {
		return domain.StoredRecord{}, err
	}

	camps, info, err := encodeMaps(record)
	if err != nil {
		return domain.StoredRecord{}, domain.StoreUnavailable("upsert", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoredRecord{}, domain.StoreUnavailable("upsert", fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if s.dialect.Lock != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.Lock); err != nil {
			return domain.StoredRecord{}, domain.StoreUnavailable("upsert", fmt.Errorf("lock: %w", err))
		}
	}

	existing, found, err := s.selectOne(ctx, tx)
	if err != nil {
		return domain.StoredRecord{}, domain.StoreUnavailable("upsert", err)
	}

	now := s.now().Truncate(time.Millisecond)
	out := record.WithEmptyMaps()
	out.UpdatedAt = now
	if found {
		out.ID = existing.ID
		out.CreatedAt = existing.CreatedAt
		q := fmt.Sprintf(`UPDATE %s SET email = %s, guardian_name = %s, consent = %s, selected_camps = %s, personal_info = %s, updated_at = %s WHERE id = %s`,
			Table, s.bind(1), s.bind(2), s.bind(3), s.bind(4), s.bind(5), s.bind(6), s.bind(7))
		if _, err := tx.ExecContext(ctx, q, out.Email, out.GuardianName, out.Consent, camps, info, now.UnixMilli(), out.ID); err != nil {
			return domain.StoredRecord{}, domain.StoreUnavailable("upsert", fmt.Errorf("update: %w", err))
		}
	} else {
		out.ID = s.newID()
		out.CreatedAt = now
		q := fmt.Sprintf(`INSERT INTO %s (id, email, guardian_name, consent, selected_camps, personal_info, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
			Table, s.bind(1), s.bind(2), s.bind(3), s.bind(4), s.bind(5), s.bind(6), s.bind(7), s.bind(8))
		if _, err := tx.ExecContext(ctx, q, out.ID, out.Email, out.GuardianName, out.Consent, camps, info, now.UnixMilli(), now.UnixMilli()); err != nil {
			return domain.StoredRecord{}, domain.StoreUnavailable("upsert", fmt.Errorf("insert: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.StoredRecord{}, domain.StoreUnavailable("upsert", fmt.Errorf("commit: %w", err))
	}
	return out, nil
}

// Pending returns the staged record if one exists.
func (s *Store) Pending(ctx context.Context) (domain.StoredRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(ctx); err != nil {
		return domain.StoredRecord{}, false, err
	}
	rec, found, err := s.selectOne(ctx, s.db)
	if err != nil {
		return domain.StoredRecord{}, false, domain.StoreUnavailable("read", err)
	}
	return rec, found, nil
}

// Count returns the number of rows in the registrations table.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+Table).Scan(&n); err != nil {
		return 0, domain.StoreUnavailable("count", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) selectOne(ctx context.Context, q queryer) (domain.StoredRecord, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT id, email, guardian_name, consent, selected_camps, personal_info, created_at, updated_at FROM `+Table+` ORDER BY created_at LIMIT 1`)
	var (
		rec                domain.StoredRecord
		camps, info        string
		createdMS, updated int64
	)
	err := row.Scan(&rec.ID, &rec.Email, &rec.GuardianName, &rec.Consent, &camps, &info, &createdMS, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredRecord{}, false, nil
	}
	if err != nil {
		return domain.StoredRecord{}, false, fmt.Errorf("select %s: %w", Table, err)
	}
	if err := decodeMaps(&rec, camps, info); err != nil {
		return domain.StoredRecord{}, false, err
	}
	rec = rec.WithEmptyMaps()
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, true, nil
}

func (s *Store) bind(n int) string {
	if s.dialect.Bind == nil {
		return "?"
	}
	return s.dialect.Bind(n)
}

func encodeMaps(r domain.RegistrationRecord) (string, string, error) {
	camps := r.SelectedCamps
	if camps == nil {
		camps = map[string]bool{}
	}
	info := r.PersonalInfo
	if info == nil {
		info = map[string]string{}
	}
	cb, err := json.Marshal(camps)
	if err != nil {
		return "", "", fmt.Errorf("encode selected camps: %w", err)
	}
	ib, err := json.Marshal(info)
	if err != nil {
		return "", "", fmt.Errorf("encode personal info: %w", err)
	}
	return string(cb), string(ib), nil
}

func decodeMaps(rec *domain.StoredRecord, camps, info string) error {
	if strings.TrimSpace(camps) != "" {
		if err := json.Unmarshal([]byte(camps), &rec.SelectedCamps); err != nil {
			return fmt.Errorf("decode selected camps: %w", err)
		}
	}
	if strings.TrimSpace(info) != "" {
		if err := json.Unmarshal([]byte(info), &rec.PersonalInfo); err != nil {
			return fmt.Errorf("decode personal info: %w", err)
		}
	}
	return nil
}
