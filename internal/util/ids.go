package util

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRunID returns a new pipeline run identifier of the form "run_<nanoid>".
// The lowercase alphabet keeps the identifier safe for object-storage keys
// and queue routing keys.
func NewRunID() (string, error) {
	id, err := gonanoid.Generate(runIDAlphabet, 16)
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}
	return "run_" + id, nil
}

// NewCorrelationID returns an opaque identifier used to correlate queue
// messages and batch artifacts that belong to one stage execution.
func NewCorrelationID() (string, error) {
	return gonanoid.New()
}
