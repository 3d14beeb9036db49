package serialization

import (
	"fmt"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxEntries   = 100_000 // Maximum entries of one dictionary
	MaxKeyLen    = 4096    // Maximum key length
	MaxDepth     = 32      // Maximum nesting of state dictionaries
	MaxTensorLen = 1 << 34 // Maximum raw tensor payload in bytes
)

// ValidateKey rejects empty, oversized and control-character keys.
func ValidateKey(key string) error {
	if key == "" {
		return &ValidationError{Type: "invalid_key", Details: "empty key"}
	}
	if len(key) > MaxKeyLen {
		return &ValidationError{
			Type:    "invalid_key",
			Key:     key[:32] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(key), MaxKeyLen),
		}
	}
	if strings.ContainsFunc(key, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return &ValidationError{Type: "invalid_key", Key: key, Details: "contains control character"}
	}
	return nil
}

// Validate checks every key and value of s, recursing into nested dictionaries.
func Validate(s StateDict) error {
	return validate(s, 0)
}

func validate(s StateDict, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: more than %d levels", ErrTooDeep, MaxDepth)
	}
	if len(s) > MaxEntries {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyEntries, len(s), MaxEntries)
	}
	for _, key := range s.Keys() {
		if err := ValidateKey(key); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		switch v := s[key].(type) {
		case TensorData:
			if err := v.Validate(); err != nil {
				if ve, ok := err.(*ValidationError); ok {
					ve.Key = key
				}
				return err
			}
		case StateDict:
			if err := validate(v, depth+1); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		case nil:
			return fmt.Errorf("%w: nil value for %q", ErrUnsupportedValue, key)
		default:
			if _, err := TypeOf(v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}
