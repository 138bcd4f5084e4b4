package model

import (
	"strings"

	"github.com/google/uuid"
)

// Opaque ID helpers. IDs are a short random token behind a type prefix so
// log lines and API payloads are self-describing.

func newID(prefix string, n int) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + raw[:n]
}

// NewJobID returns a fresh job identifier (job_ + 12 chars).
func NewJobID() string { return newID("job_", 12) }

// NewTourID returns a fresh tour identifier (tour_ + 10 chars).
func NewTourID() string { return newID("tour_", 10) }

// NewPinID returns a fresh identifier for a generated pin (ai_pin_ + 8 chars).
func NewPinID() string { return newID("ai_pin_", 8) }
