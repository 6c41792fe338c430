package signals

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies why a gatherer produced no value.
type ErrorKind int

const (
	KindNotConfigured ErrorKind = iota + 1
	KindUnauthorized
	KindTimeout
	KindRateLimited
	KindNetwork
	KindBadResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindUnauthorized:
		return "unauthorized"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network_error"
	case KindBadResponse:
		return "bad_response"
	default:
		return "unknown"
	}
}

// Error is returned by every gatherer call that yields no value.
type Error struct {
	Gatherer string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Gatherer, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Gatherer, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind of a gatherer error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsDisabled reports whether err means the gatherer is not configured.
func IsDisabled(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotConfigured
}

// Outcome is the metrics label for a call result.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k, ok := KindOf(err); ok {
		return k.String()
	}
	return "error"
}

func notConfigured(gatherer string) *Error {
	return &Error{Gatherer: gatherer, Kind: KindNotConfigured}
}

// transportError classifies a failed request.
func transportError(gatherer string, err error) *Error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return &Error{Gatherer: gatherer, Kind: KindTimeout, Err: err}
	default:
		return &Error{Gatherer: gatherer, Kind: KindNetwork, Err: err}
	}
}

// statusError maps a non-2xx HTTP status.
func statusError(gatherer string, code int) *Error {
	err := fmt.Errorf("unexpected status %d", code)
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Gatherer: gatherer, Kind: KindUnauthorized, Err: err}
	case http.StatusTooManyRequests:
		return &Error{Gatherer: gatherer, Kind: KindRateLimited, Err: err}
	default:
		return &Error{Gatherer: gatherer, Kind: KindBadResponse, Err: err}
	}
}

func badResponse(gatherer string, err error) *Error {
	return &Error{Gatherer: gatherer, Kind: KindBadResponse, Err: err}
}

var errEmptyHost = errors.New("empty host")
