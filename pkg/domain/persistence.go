package domain

import "context"

// StagingStore durably holds at most one pending registration on the local
// device. Implementations must serialize Upsert so that concurrent callers can
// never both observe "no record" and both insert.
type StagingStore interface {
	// Open ensures the backing database and its registrations collection
	// exist. It is idempotent.
	Open(ctx context.Context) error
	// Upsert overwrites the existing record in place (keeping its ID and
	// CreatedAt) or inserts a new one with a freshly assigned ID.
	Upsert(ctx context.Context, record RegistrationRecord) (StoredRecord, error)
	// Pending returns the single staged record, if any.
	Pending(ctx context.Context) (StoredRecord, bool, error)
	// Close releases the underlying resources.
	Close() error
}
