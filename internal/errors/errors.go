// Package errors provides structured errors for filescout with stable
// kinds, retryability hints, and HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the failure categories the rest of
// the system (handlers, worker, CLI) branches on.
type Kind int

const (
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = iota
	// KindNotFound means a file, session, or catalog row does not exist.
	KindNotFound
	// KindUnsupported means the file type is outside the parser allowlist.
	KindUnsupported
	// KindTooLarge means the file exceeds the parser size cap.
	KindTooLarge
	// KindInvalidInput means the caller supplied a malformed request.
	KindInvalidInput
	// KindStorage means the catalog or an index snapshot failed.
	KindStorage
	// KindEmbedding means embedding generation failed.
	KindEmbedding
	// KindModelUnavailable means the model endpoint is unreachable or the
	// circuit breaker is open.
	KindModelUnavailable
	// KindModelRuntime means the model responded but the response was an
	// error or could not be used.
	KindModelRuntime
	// KindRateLimited means the client exceeded an endpoint rate limit.
	KindRateLimited
)

// String returns the stable name for a kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	case KindTooLarge:
		return "too_large"
	case KindInvalidInput:
		return "invalid_input"
	case KindStorage:
		return "storage"
	case KindEmbedding:
		return "embedding"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindModelRuntime:
		return "model_runtime"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code handlers return for it.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnsupported, KindInvalidInput:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindModelUnavailable:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether retrying the same operation later can succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindModelUnavailable, KindRateLimited, KindEmbedding, KindStorage:
		return true
	default:
		return false
	}
}

// Error is the structured error type used throughout filescout.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "catalog.Upsert"
	Message string
	Err     error // wrapped cause, may be nil
}

// E builds an Error from a kind, the failing operation, and a message.
func E(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause.
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind so callers can use errors.Is with sentinel
// kinds without caring about op or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
	}
	return false
}

// KindOf extracts the kind from any error chain. Unknown errors are
// reported as KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Convenience re-exports so callers only import one errors package.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns a plain error with the given text.
func New(text string) error { return errors.New(text) }
