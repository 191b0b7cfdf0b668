package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// HashString returns the hex sha256 of the input.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum)
}

// HashFields hashes several fields joined with a separator that cannot
// appear in model identifiers, for building stable cache keys.
func HashFields(fields ...string) string {
	return HashString(strings.Join(fields, "\x1f"))
}
