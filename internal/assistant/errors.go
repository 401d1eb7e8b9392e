package assistant

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned by Converse for empty or whitespace-only text.
// No provider call is issued in that case.
var ErrEmptyInput = errors.New("assistant: empty input")

// ErrUnknownLanguage is returned when a translation names a source language
// outside the configured pair.
var ErrUnknownLanguage = errors.New("assistant: language not in configured pair")

// ServiceError means the external provider call failed: network, auth, or a
// malformed/schema-incomplete response. Whether it propagates to the caller
// is operation-specific — Converse/Translate/SynthesizeSpeech fail loud,
// DailyWord/VocabularyByCategory absorb it into a fallback result.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string { return fmt.Sprintf("assistant: %s: %v", e.Op, e.Err) }
func (e *ServiceError) Unwrap() error { return e.Err }

func serviceErr(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Err: err}
}
