package core

import (
	"sync"
	"time"

	"campreg/pkg/domain"
)

// Assembler accumulates partial step input into one in-memory registration.
type Assembler struct {
	mu     sync.Mutex
	record domain.RegistrationRecord
}

// NewAssembler returns an assembler holding an empty record.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Apply merges partial into the accumulated record and returns a copy of the
// result.
func (a *Assembler) Apply(partial domain.PartialRecord) domain.RegistrationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record = domain.Merge(a.record, partial)
	return a.record.Clone()
}

// SetCamp toggles a single camp, keeping the other selections.
func (a *Assembler) SetCamp(name string, selected bool) domain.RegistrationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	camps := make(map[string]bool, len(a.record.SelectedCamps)+1)
	for k, v := range a.record.SelectedCamps {
		camps[k] = v
	}
	camps[name] = selected
	a.record = domain.Merge(a.record, domain.PartialRecord{SelectedCamps: camps})
	return a.record.Clone()
}

// Record returns a copy of the accumulated record.
func (a *Assembler) Record() domain.RegistrationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record.Clone()
}

// Load replaces the accumulated record, e.g. with a staged record on resume.
func (a *Assembler) Load(record domain.RegistrationRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record = record.Clone()
}

// SetIdentity records the store-assigned ID and timestamps on the current
// record, leaving the user-supplied fields as they are.
func (a *Assembler) SetIdentity(id string, createdAt, updatedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record.ID = id
	a.record.CreatedAt = createdAt
	a.record.UpdatedAt = updatedAt
}

// Clear drops everything accumulated so far.
func (a *Assembler) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record = domain.RegistrationRecord{}
}
