package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashString(""))
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
	assert.Len(t, HashString("anything"), 64)
}

func TestHashFields(t *testing.T) {
	assert.Equal(t, HashFields("a", "b"), HashFields("a", "b"))
	assert.NotEqual(t, HashFields("a", "b"), HashFields("b", "a"))

	// The separator keeps adjacent fields from colliding.
	assert.NotEqual(t, HashFields("ab", "c"), HashFields("a", "bc"))
}
