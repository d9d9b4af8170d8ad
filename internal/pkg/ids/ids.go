// Package ids generates the random identifiers used for request and
// render job tracking.
package ids

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a random (version 4) UUID as 32 hex characters, without
// dashes, so it can be used directly as a directory name.
func New() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Valid reports whether s looks like an ID produced by New.
func Valid(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
