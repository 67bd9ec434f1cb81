package client

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable is the single coarse failure callers see for any fetch failure.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Kind tags why a fetch failed. It exists for logs and metrics; callers should
// branch on ErrUpstreamUnavailable only.
type Kind int

const (
	// KindTimeout means the bounded wait elapsed before a response arrived.
	KindTimeout Kind = iota + 1
	// KindTransport covers connection, DNS and non-2xx failures, and an open circuit breaker.
	KindTransport
	// KindMalformed means the body could not be read as the expected document.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchError is returned by ForecastClient implementations for every failure.
// errors.Is(err, ErrUpstreamUnavailable) holds for any *FetchError.
type FetchError struct {
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

// Unwrap exposes both the coarse sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// KindOf returns the failure kind of err, or 0 when err is not a *FetchError.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

func newFetchError(kind Kind, format string, args ...interface{}) *FetchError {
	return &FetchError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
