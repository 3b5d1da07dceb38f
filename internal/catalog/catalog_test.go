package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.NotEmpty(t, c.Camps())
	require.NotEmpty(t, c.Terms())
	for _, term := range c.Terms() {
		assert.NotEmpty(t, term.English)
		assert.NotEmpty(t, term.Spanish)
	}
	assert.True(t, c.Selectable("Soccer"))
	assert.True(t, c.Selectable("Swimming"))
	assert.False(t, c.Selectable("Basketball"), "full camps cannot be selected")
	assert.False(t, c.Selectable("Fencing"), "unknown camps cannot be selected")
	assert.NotContains(t, c.Available(), "Basketball")
}

func TestParseRejectsBadDocuments(t *testing.T) {
	_, err := Parse([]byte(`{"camps":[{"name":"A"},{"name":"A"}]}`))
	assert.ErrorContains(t, err, "duplicate camp")
	_, err = Parse([]byte(`{"camps":[{"name":"  "}]}`))
	assert.Error(t, err)
	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestLookupAndCopies(t *testing.T) {
	c, err := New([]Camp{{Name: " Art ", Description: "paint"}}, nil)
	require.NoError(t, err)
	camp, ok := c.Lookup("Art")
	require.True(t, ok)
	assert.Equal(t, "paint", camp.Description)

	camps := c.Camps()
	camps[0].Full = true
	assert.True(t, c.Selectable("Art"), "Camps returns a copy")
}
