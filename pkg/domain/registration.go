// Package domain holds the registration record model, the pure merge used to
// assemble it across wizard steps, and the persistence contract for staging it
// locally. It must not depend on internal packages.
package domain

import (
	"sort"
	"strings"
	"time"
)

// RegistrationRecord is the single logical registration captured by the wizard.
type RegistrationRecord struct {
	ID            string            `json:"id,omitempty"`
	Email         string            `json:"email"`
	GuardianName  string            `json:"guardianName"`
	Consent       bool              `json:"consent"`
	SelectedCamps map[string]bool   `json:"selectedCamps"`
	PersonalInfo  map[string]string `json:"personalInfo"`
	CreatedAt     time.Time         `json:"createdAt,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt,omitempty"`
}

// StoredRecord is a record as persisted by a StagingStore. ID and timestamps
// are always populated.
type StoredRecord = RegistrationRecord

// PartialRecord carries the fields one wizard step contributes. Nil fields are
// left untouched by Merge; non-nil maps replace the accumulated map wholesale.
type PartialRecord struct {
	Email         *string           `json:"email,omitempty"`
	GuardianName  *string           `json:"guardianName,omitempty"`
	Consent       *bool             `json:"consent,omitempty"`
	SelectedCamps map[string]bool   `json:"selectedCamps,omitempty"`
	PersonalInfo  map[string]string `json:"personalInfo,omitempty"`
}

// Merge applies partial over base with last-write-wins shallow semantics and
// returns the merged record. Neither argument is mutated.
func Merge(base RegistrationRecord, partial PartialRecord) RegistrationRecord {
	out := base.Clone()
	if partial.Email != nil {
		out.Email = *partial.Email
	}
	if partial.GuardianName != nil {
		out.GuardianName = *partial.GuardianName
	}
	if partial.Consent != nil {
		out.Consent = *partial.Consent
	}
	if partial.SelectedCamps != nil {
		out.SelectedCamps = cloneCamps(partial.SelectedCamps)
	}
	if partial.PersonalInfo != nil {
		out.PersonalInfo = cloneInfo(partial.PersonalInfo)
	}
	return out
}

// Clone returns a deep copy of the record.
func (r RegistrationRecord) Clone() RegistrationRecord {
	r.SelectedCamps = cloneCamps(r.SelectedCamps)
	r.PersonalInfo = cloneInfo(r.PersonalInfo)
	return r
}

// WithEmptyMaps returns a copy whose nil maps are replaced by empty ones, the
// shape a record has after a storage round trip.
func (r RegistrationRecord) WithEmptyMaps() RegistrationRecord {
	out := r.Clone()
	if out.SelectedCamps == nil {
		out.SelectedCamps = map[string]bool{}
	}
	if out.PersonalInfo == nil {
		out.PersonalInfo = map[string]string{}
	}
	return out
}

// SelectedCampNames returns the names of camps toggled on, sorted.
func (r RegistrationRecord) SelectedCampNames() []string {
	names := make([]string, 0, len(r.SelectedCamps))
	for name, on := range r.SelectedCamps {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HasSelectedCamp reports whether at least one camp is selected.
func (r RegistrationRecord) HasSelectedCamp() bool {
	for _, on := range r.SelectedCamps {
		if on {
			return true
		}
	}
	return false
}

// MissingForSubmission lists the fields that keep the record from being
// submittable. An empty result means the record may be staged.
func (r RegistrationRecord) MissingForSubmission() []string {
	var missing []string
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.GuardianName) == "" {
		missing = append(missing, "guardianName")
	}
	if !r.Consent {
		missing = append(missing, "consent")
	}
	if !r.HasSelectedCamp() {
		missing = append(missing, "selectedCamps")
	}
	return missing
}

// ContentEqual compares the user-supplied fields of two records, ignoring the
// store-assigned ID and timestamps.
func (r RegistrationRecord) ContentEqual(other RegistrationRecord) bool {
	if r.Email != other.Email || r.GuardianName != other.GuardianName || r.Consent != other.Consent {
		return false
	}
	if len(r.SelectedCamps) != len(other.SelectedCamps) || len(r.PersonalInfo) != len(other.PersonalInfo) {
		return false
	}
	for k, v := range r.SelectedCamps {
		if ov, ok := other.SelectedCamps[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range r.PersonalInfo {
		if ov, ok := other.PersonalInfo[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func cloneCamps(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneInfo(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
