// Package uuid provides cycle ID generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 strings so cycle ids sort by start.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string, falling back to a random v4 when the v7
// source fails.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err == nil {
		return id.String(), nil
	}
	fallback, ferr := uuid.NewRandom()
	if ferr != nil {
		return "", fmt.Errorf("generate cycle id: %w", ferr)
	}
	return fallback.String(), nil
}
