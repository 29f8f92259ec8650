// Package uuid provides ID generation for documents, points and jobs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID strings. Points stored in Qdrant need UUID or integer ids.
type Generator struct {
	timeOrdered bool
}

// New creates a Generator producing random (v4) UUIDs.
func New() *Generator {
	return &Generator{}
}

// NewTimeOrdered creates a Generator producing UUID v7 strings, which sort by creation time.
func NewTimeOrdered() *Generator {
	return &Generator{timeOrdered: true}
}

// NewID returns a new UUID string.
func (g Generator) NewID() (string, error) {
	if g.timeOrdered {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate uuid7: %w", err)
		}
		return id.String(), nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}
