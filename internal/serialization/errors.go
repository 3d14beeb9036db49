package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrUnsupportedValue   = errors.New("unsupported state value")
	ErrTruncated          = errors.New("truncated state data")
	ErrTooManyEntries     = errors.New("too many entries in state")
	ErrTooDeep            = errors.New("state nesting too deep")
	ErrInvalidKey         = errors.New("invalid state key")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "tensor_size", "invalid_key")
	Key     string // Entry key involved
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: entry %q: %s", e.Type, e.Key, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}
