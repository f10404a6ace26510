// Package id provides UUIDv7 generation for run and snapshot identifiers.
// UUIDv7 is time-ordered, so snapshot ids sort by creation time.
package id

import (
	"github.com/google/uuid"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New()
	}
	return v
}

// NewRunID returns a fresh identifier for one engine run, as a string for log fields.
func NewRunID() string {
	return New().String()
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
