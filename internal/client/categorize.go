package client

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryTransport   ErrorCategory = "transport"
	ErrorCategoryMalformed   ErrorCategory = "malformed"
	ErrorCategoryCircuitOpen ErrorCategory = "circuit_open"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory. An open breaker is
// reported separately from other transport failures so dashboards can tell them apart.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorCategoryCircuitOpen
	}

	switch KindOf(err) {
	case KindTimeout:
		return ErrorCategoryTimeout
	case KindTransport:
		return ErrorCategoryTransport
	case KindMalformed:
		return ErrorCategoryMalformed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	return ErrorCategoryUnknown
}
