package core

import (
	"testing"
	"time"

	"campreg/pkg/domain"

	"github.com/stretchr/testify/assert"
)

func TestAssemblerAccumulates(t *testing.T) {
	a := NewAssembler()
	email := "a@b.com"
	a.Apply(domain.PartialRecord{PersonalInfo: map[string]string{"age": "10"}})
	a.SetCamp("Soccer", true)
	a.SetCamp("Art", true)
	rec := a.SetCamp("Soccer", false)
	a.Apply(domain.PartialRecord{Email: &email})

	assert.Equal(t, map[string]bool{"Soccer": false, "Art": true}, rec.SelectedCamps)
	got := a.Record()
	assert.Equal(t, "a@b.com", got.Email)
	assert.Equal(t, map[string]string{"age": "10"}, got.PersonalInfo)

	got.PersonalInfo["age"] = "99"
	assert.Equal(t, "10", a.Record().PersonalInfo["age"], "Record returns a copy")

	a.Clear()
	assert.Equal(t, domain.RegistrationRecord{}, a.Record())
}

func TestAssemblerLoad(t *testing.T) {
	a := NewAssembler()
	src := domain.RegistrationRecord{ID: "x", SelectedCamps: map[string]bool{"Art": true}}
	a.Load(src)
	src.SelectedCamps["Art"] = false
	assert.True(t, a.Record().SelectedCamps["Art"])
	assert.Equal(t, "x", a.Record().ID)
}

func TestAssemblerSetIdentityKeepsFields(t *testing.T) {
	a := NewAssembler()
	name := "Jane Doe"
	a.Apply(domain.PartialRecord{GuardianName: &name})
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	a.SetIdentity("id-7", created, created.Add(time.Minute))

	got := a.Record()
	assert.Equal(t, "id-7", got.ID)
	assert.Equal(t, "Jane Doe", got.GuardianName)
	assert.True(t, got.UpdatedAt.Equal(created.Add(time.Minute)))
}
