// Package memory provides an in-memory staging store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"campreg/pkg/domain"

	"github.com/google/uuid"
)

var _ domain.StagingStore = (*Store)(nil)

var errClosed = errors.New("memory store closed")

// Store keeps at most one registration in process memory.
type Store struct {
	mu      sync.Mutex
	record  *domain.StoredRecord
	closed  bool
	faults  []error
	upserts int
	now     func() time.Time
}

// NewStore constructs an empty memory store.
func NewStore() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next Open, Upsert or Pending call return err wrapped as
// a store failure.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, err)
}

// Upserts reports how many successful upserts have been applied.
func (s *Store) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// Open implements domain.StagingStore.
func (s *Store) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked("open")
}

// Upsert implements domain.StagingStore.
func (s *Store) Upsert(_ context.Context, record domain.RegistrationRecord) (domain.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked("upsert"); err != nil {
		return domain.StoredRecord{}, err
	}
	now := s.now()
	out := record.WithEmptyMaps()
	out.UpdatedAt = now
	if s.record != nil {
		out.ID = s.record.ID
		out.CreatedAt = s.record.CreatedAt
	} else {
		out.ID = uuid.NewString()
		out.CreatedAt = now
	}
	stored := out.Clone()
	s.record = &stored
	s.upserts++
	return out, nil
}

// Pending implements domain.StagingStore.
func (s *Store) Pending(context.Context) (domain.StoredRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked("read"); err != nil {
		return domain.StoredRecord{}, false, err
	}
	if s.record == nil {
		return domain.StoredRecord{}, false, nil
	}
	return s.record.Clone(), true, nil
}

// Close implements domain.StagingStore. The staged record is kept so a
// reopened handle in tests can observe it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen clears the closed flag.
func (s *Store) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

func (s *Store) checkLocked(op string) error {
	if len(s.faults) > 0 {
		err := s.faults[0]
		s.faults = s.faults[1:]
		return domain.StoreUnavailable(op, err)
	}
	if s.closed {
		return domain.StoreUnavailable(op, errClosed)
	}
	return nil
}
