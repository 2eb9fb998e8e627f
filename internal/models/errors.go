package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for ledger writes.
var (
	ErrInvalidEvent   = errors.New("invalid event")
	ErrEmptyBatch     = errors.New("empty batch")
	ErrSealingTimeout = errors.New("sealing timeout: nonce iteration cap exceeded")
	ErrSigningService = errors.New("signing service error")
)

// Sentinel errors for lookups.
var (
	ErrNotFound     = errors.New("not found")
	ErrEventPending = errors.New("event not sealed yet")
	ErrInvalidQuery = errors.New("invalid query")
)

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%w: %s exceeds maximum length of %d", ErrInvalidEvent, field, maxLen)
}

// ErrMissingField returns an error indicating a required field is empty.
func ErrMissingField(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidEvent, field)
}
