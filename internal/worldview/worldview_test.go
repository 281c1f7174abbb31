package worldview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 12)

	seen := make(map[Worldview]bool)
	for _, w := range all {
		assert.False(t, seen[w], "duplicate worldview %s", w)
		seen[w] = true
	}
	assert.True(t, seen[Materialismus])
	assert.True(t, seen[Spiritualismus])
}

func TestParse(t *testing.T) {
	w, err := Parse("Idealismus")
	require.NoError(t, err)
	assert.Equal(t, Idealismus, w)

	w, err = Parse("idealismus")
	require.NoError(t, err)
	assert.Equal(t, Idealismus, w, "parse is case-insensitive")

	_, err = Parse("Nihilismus")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("Phänomenalismus"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("Unbekannt"))
}
