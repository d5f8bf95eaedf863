// Package uuid generates unique identifiers for records, sessions, and
// tokens. It wraps github.com/google/uuid so the rest of the codebase
// depends on a single call site.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}
