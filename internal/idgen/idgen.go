// Package idgen generates short URL-safe ids for interventions and micro tasks.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes prepended to generated ids.
const (
	InterventionPrefix = "iv-"
	MicroTaskPrefix    = "mt-"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	length   = 8
)

// Generate returns prefix followed by a random nanoid.
func Generate(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
