package dispatch

import (
	"errors"
	"fmt"
)

// Kind is the taxonomy every dispatch failure maps to exactly one of (C10).
type Kind string

const (
	KindInvalidArgument    Kind = "InvalidArgument"
	KindAuthenticationError Kind = "AuthenticationError"
	KindAuthorizationError Kind = "AuthorizationError"
	KindRateLimited        Kind = "RateLimited"
	KindUpstreamTransient  Kind = "UpstreamTransient"
	KindClientError        Kind = "ClientError"
	KindProtocolError      Kind = "ProtocolError"
	KindCancelled          Kind = "Cancelled"
	KindTimeout            Kind = "Timeout"
)

// retryable reports whether the Retry Controller (C4) should retry a
// failure of this kind.
func (k Kind) retryable() bool {
	switch k {
	case KindRateLimited, KindUpstreamTransient, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the typed failure every dispatch surfaces to its caller. It
// never carries a client secret or bearer token value.
type Error struct {
	Kind              Kind
	HTTPStatus        int
	UpstreamRequestID string
	Attempt           int
	Message           string
	Err               error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("dispatch: %s (http %d, attempt %d): %s", e.Kind, e.HTTPStatus, e.Attempt, e.Message)
	}
	return fmt.Sprintf("dispatch: %s (attempt %d): %s", e.Kind, e.Attempt, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, status int, attempt int, msg string, cause error) *Error {
	return &Error{Kind: kind, HTTPStatus: status, Attempt: attempt, Message: msg, Err: cause}
}

// newErrorWithUpstreamID is newError plus the upstream correlation id
// extracted from the response, for the call sites that have one (§4.10,
// §7: "enabling log-to-log joining").
func newErrorWithUpstreamID(kind Kind, status int, attempt int, msg string, cause error, upstreamRequestID string) *Error {
	e := newError(kind, status, attempt, msg, cause)
	e.UpstreamRequestID = upstreamRequestID
	return e
}

// Sentinel errors for callers that prefer errors.Is over inspecting Kind
// directly, mirroring the teacher's exported sentinel-error convention.
var (
	ErrInvalidArgument     = errors.New("dispatch: invalid argument")
	ErrAuthenticationError = errors.New("dispatch: authentication failed")
	ErrAuthorizationError  = errors.New("dispatch: authorization denied")
	ErrRateLimited         = errors.New("dispatch: rate limited")
	ErrUpstreamTransient   = errors.New("dispatch: upstream transient failure")
	ErrClientError         = errors.New("dispatch: client error")
	ErrProtocolError       = errors.New("dispatch: protocol error")
	ErrCancelled           = errors.New("dispatch: cancelled")
	ErrTimeout             = errors.New("dispatch: timeout")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindAuthenticationError:
		return ErrAuthenticationError
	case KindAuthorizationError:
		return ErrAuthorizationError
	case KindRateLimited:
		return ErrRateLimited
	case KindUpstreamTransient:
		return ErrUpstreamTransient
	case KindClientError:
		return ErrClientError
	case KindProtocolError:
		return ErrProtocolError
	case KindCancelled:
		return ErrCancelled
	case KindTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// Is lets errors.Is(err, dispatch.ErrRateLimited) work against a *Error
// without the caller needing to inspect Kind directly.
func (e *Error) Is(target error) bool {
	return sentinelFor(e.Kind) == target
}
