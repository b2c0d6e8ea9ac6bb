// Package errors defines the sentinel errors shared by the relay, its store
// drivers and its transports, and maps them to short kind labels for logs
// and metrics.
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDecode            = errors.New("record body is not valid text")
	ErrParse             = errors.New("record body is not a valid document")
	ErrStoreWrite        = errors.New("store write failed")
	ErrDuplicateDocument = errors.New("document already exists")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrTimeout           = errors.New("operation timed out")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// ConfigError reports a single invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig.Error(), e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// Kind returns a stable label for err, suitable as a metric label value.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrDuplicateDocument):
		return "duplicate"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrStoreWrite):
		return "store_write"
	case errors.Is(err, ErrInvalidConfig):
		return "config"
	default:
		return "internal"
	}
}
