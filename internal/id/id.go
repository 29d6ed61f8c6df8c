// Package id generates the identifiers used across the codebase.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUID string. Matchables carry these as their
// identity for their whole lifetime.
func New() string {
	return uuid.NewString()
}

// Short returns an 8-character hex id. Suitable where brevity matters,
// such as recorded request entries.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
