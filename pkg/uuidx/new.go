package uuidx

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a version 7 UUID. It panics if generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a version 7 UUID in its canonical string form.
func NewString() string {
	return New().String()
}

// NewToken generates a version 7 UUID without dashes, suitable as a single
// NATS subject token.
func NewToken() string {
	return strings.ReplaceAll(NewString(), "-", "")
}
