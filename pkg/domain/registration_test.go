package domain

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestMergeLastWriteWins(t *testing.T) {
	base := RegistrationRecord{
		Email:         "old@example.com",
		GuardianName:  "Old Name",
		SelectedCamps: map[string]bool{"Soccer": true},
		PersonalInfo:  map[string]string{"age": "9"},
	}
	merged := Merge(base, PartialRecord{
		Email:        strPtr("a@b.com"),
		Consent:      boolPtr(true),
		PersonalInfo: map[string]string{"age": "10", "shirt": "M"},
	})

	if merged.Email != "a@b.com" {
		t.Fatalf("email not overwritten: %q", merged.Email)
	}
	if merged.GuardianName != "Old Name" {
		t.Fatalf("nil field should keep base value, got %q", merged.GuardianName)
	}
	if !merged.Consent {
		t.Fatalf("consent not applied")
	}
	if !reflect.DeepEqual(merged.PersonalInfo, map[string]string{"age": "10", "shirt": "M"}) {
		t.Fatalf("personal info should be replaced wholesale, got %v", merged.PersonalInfo)
	}
	if !reflect.DeepEqual(merged.SelectedCamps, map[string]bool{"Soccer": true}) {
		t.Fatalf("camps should be untouched, got %v", merged.SelectedCamps)
	}
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	camps := map[string]bool{"Swimming": true}
	base := RegistrationRecord{PersonalInfo: map[string]string{"age": "10"}}
	merged := Merge(base, PartialRecord{SelectedCamps: camps})

	camps["Swimming"] = false
	merged.PersonalInfo["age"] = "11"

	if !merged.SelectedCamps["Swimming"] {
		t.Fatalf("merged record aliases the partial map")
	}
	if base.PersonalInfo["age"] != "10" {
		t.Fatalf("merge mutated base map")
	}
}

func TestMergeEmptyMapClears(t *testing.T) {
	base := RegistrationRecord{SelectedCamps: map[string]bool{"Soccer": true}}
	merged := Merge(base, PartialRecord{SelectedCamps: map[string]bool{}})
	if merged.HasSelectedCamp() {
		t.Fatalf("expected empty selection, got %v", merged.SelectedCamps)
	}
}

func TestMissingForSubmission(t *testing.T) {
	cases := []struct {
		name string
		rec  RegistrationRecord
		want []string
	}{
		{"empty", RegistrationRecord{}, []string{"email", "guardianName", "consent", "selectedCamps"}},
		{"whitespace email", RegistrationRecord{Email: "  ", GuardianName: "Jane Doe", Consent: true, SelectedCamps: map[string]bool{"Soccer": true}}, []string{"email"}},
		{"no consent", RegistrationRecord{Email: "a@b.com", GuardianName: "Jane Doe", SelectedCamps: map[string]bool{"Soccer": true}}, []string{"consent"}},
		{"only deselected camps", RegistrationRecord{Email: "a@b.com", GuardianName: "Jane Doe", Consent: true, SelectedCamps: map[string]bool{"Soccer": false}}, []string{"selectedCamps"}},
		{"complete", RegistrationRecord{Email: "a@b.com", GuardianName: "Jane Doe", Consent: true, SelectedCamps: map[string]bool{"Soccer": true}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.rec.MissingForSubmission()
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("missing = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectedCampNamesSorted(t *testing.T) {
	rec := RegistrationRecord{SelectedCamps: map[string]bool{"Swimming": true, "Art": true, "Soccer": false}}
	got := rec.SelectedCampNames()
	if !reflect.DeepEqual(got, []string{"Art", "Swimming"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestContentEqualIgnoresIdentity(t *testing.T) {
	a := RegistrationRecord{ID: "one", Email: "a@b.com", SelectedCamps: map[string]bool{"Soccer": true}}
	b := RegistrationRecord{ID: "two", Email: "a@b.com", SelectedCamps: map[string]bool{"Soccer": true}}
	if !a.ContentEqual(b) {
		t.Fatalf("records differing only by id should be content-equal")
	}
	b.SelectedCamps["Art"] = false
	if a.ContentEqual(b) {
		t.Fatalf("differing camp maps should not be equal")
	}
}

func TestErrorKindsMatch(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("upsert: %w", StoreUnavailable("upsert", cause))

	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable match")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("kinds must not cross-match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should stay reachable")
	}
	if KindOf(err) != KindStoreUnavailable {
		t.Fatalf("KindOf = %q", KindOf(err))
	}
	if KindOf(cause) != "" {
		t.Fatalf("foreign errors have no kind")
	}
}

func TestRetryable(t *testing.T) {
	for _, e := range []*Error{ErrNetworkUnavailable, ErrRemoteRejected, ErrTimeout, ErrSubmissionInProgress} {
		if !e.Retryable() {
			t.Fatalf("%s should be retryable", e.Kind)
		}
	}
	if ErrStepIncomplete.Retryable() {
		t.Fatalf("step incomplete needs user input, not a retry")
	}
}

func TestWithEmptyMaps(t *testing.T) {
	rec := RegistrationRecord{Email: "a@b.com"}.WithEmptyMaps()
	if rec.SelectedCamps == nil || rec.PersonalInfo == nil {
		t.Fatalf("nil maps should become empty: %+v", rec)
	}
	kept := RegistrationRecord{SelectedCamps: map[string]bool{"Art": true}}.WithEmptyMaps()
	if !kept.SelectedCamps["Art"] {
		t.Fatalf("existing entries must be kept")
	}
}
