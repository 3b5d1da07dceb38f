package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"campreg/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "campreg.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func sampleRecord(email string) domain.RegistrationRecord {
	return domain.RegistrationRecord{
		Email:         email,
		GuardianName:  "Jane Doe",
		Consent:       true,
		SelectedCamps: map[string]bool{"Soccer": true, "Art": false},
		PersonalInfo:  map[string]string{"age": "10"},
	}
}

func TestPendingEmpty(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if found {
		t.Fatalf("expected no pending record in a fresh store")
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	in := sampleRecord("a@b.com")

	stored, err := s.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stored.ID == "" || stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Fatalf("store must assign id and timestamps: %+v", stored)
	}
	got, found, err := s.Pending(ctx)
	if err != nil || !found {
		t.Fatalf("Pending: found=%v err=%v", found, err)
	}
	if !got.ContentEqual(in) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, in)
	}
	if got.ID != stored.ID || !got.CreatedAt.Equal(stored.CreatedAt) {
		t.Fatalf("read back identity differs: %+v vs %+v", got, stored)
	}
}

func TestUpsertWithoutMapsMatchesPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	stored, err := s.Upsert(ctx, domain.RegistrationRecord{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stored.SelectedCamps == nil || stored.PersonalInfo == nil {
		t.Fatalf("upsert should return empty maps, got %+v", stored)
	}
	pending, found, err := s.Pending(ctx)
	if err != nil || !found {
		t.Fatalf("Pending: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(stored, pending) {
		t.Fatalf("upsert result and pending differ:\n%#v\n%#v", stored, pending)
	}
}

func TestUpsertOverwritesKeepingIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })

	first, err := s.Upsert(ctx, sampleRecord("a@b.com"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	clock = clock.Add(time.Minute)
	second, err := s.Upsert(ctx, sampleRecord("c@d.com"))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("id changed on overwrite: %s -> %s", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("createdAt changed on overwrite")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updatedAt should advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	got, _, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if got.Email != "c@d.com" {
		t.Fatalf("expected latest email, got %q", got.Email)
	}
	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly one row, got %d (%v)", n, err)
	}
}

func TestConcurrentUpsertsKeepSingleRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	ids := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := s.Upsert(ctx, sampleRecord(fmt.Sprintf("user%d@example.com", i)))
			if err != nil {
				t.Errorf("upsert %d: %v", i, err)
				return
			}
			ids <- rec.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("concurrent upserts produced different ids: %s vs %s", first, id)
		}
	}
	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one row after concurrent upserts, got %d (%v)", n, err)
	}
}

func TestSlotConstraintRejectsSecondRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Upsert(ctx, sampleRecord("a@b.com")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	_, err := s.DB().ExecContext(ctx, `INSERT INTO registrations (id, slot, email, guardian_name, consent, selected_camps, personal_info, created_at, updated_at)
		VALUES ('other', 1, 'x', 'y', 1, '{}', '{}', 0, 0)`)
	if err == nil {
		t.Fatalf("expected unique slot constraint to reject a second record")
	}
}

func TestRecordSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "campreg.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	stored, err := s.Upsert(ctx, sampleRecord("a@b.com"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, found, err := reopened.Pending(ctx)
	if err != nil || !found {
		t.Fatalf("Pending after reopen: found=%v err=%v", found, err)
	}
	if got.ID != stored.ID {
		t.Fatalf("id not stable across reopen: %s vs %s", got.ID, stored.ID)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Open(ctx); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	var applied int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected one applied migration, got %d", applied)
	}
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "campreg.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_ = s.Close()
	_, err = s.Upsert(context.Background(), sampleRecord("a@b.com"))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestApplyMigrationsSkipsApplied(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = s.Close() }()
	fsys := fstest.MapFS{
		"001_items.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;")},
	}
	for i := 0; i < 2; i++ {
		if err := ApplyMigrations(ctx, s.DB(), fsys, ""); err != nil {
			t.Fatalf("apply #%d: %v", i, err)
		}
	}
	var n int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected single migration row, got %d", n)
	}
}

func TestApplyMigrationsRejectsBadSQL(t *testing.T) {
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = s.Close() }()
	bad := fstest.MapFS{"001_bad.sql": &fstest.MapFile{Data: []byte("CREAT table things(id INT);")}}
	if err := ApplyMigrations(context.Background(), s.DB(), bad, "."); err == nil {
		t.Fatalf("expected bad migration to fail")
	}
	if err := ApplyMigrations(context.Background(), nil, bad, "."); err == nil {
		t.Fatalf("expected nil db error")
	}
}

func TestExtractUp(t *testing.T) {
	got := ExtractUp("-- +migrate Up\nCREATE TABLE a(x INT);\n-- +migrate Down\nDROP TABLE a;")
	if got != "\nCREATE TABLE a(x INT);\n" {
		t.Fatalf("unexpected up section %q", got)
	}
	if ExtractUp("SELECT 1") != "SELECT 1" {
		t.Fatalf("unmarked content should pass through")
	}
}
