package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes task and request failures for HTTP translation and
// row error strings. The set is closed; workers and handlers switch on it.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindAuth                Kind = "auth"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindRateLimited         Kind = "rate_limited"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindInputFetch          Kind = "input_fetch_failed"
	KindProviderTransient   Kind = "provider_transient"
	KindProviderPermanent   Kind = "provider_permanent"
	KindStorePut            Kind = "store_put_failed"
	KindDBConflict          Kind = "db_conflict"
	KindProviderTimeout     Kind = "provider_timeout"
	KindInternal            Kind = "internal"
)

// Error is a categorized error. Msg is safe to show to clients and to
// persist on a row; provider wording never goes in unsanitized.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a categorized error with a client-safe message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a categorized error with a formatted client-safe message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause. The cause is logged, never shown to clients.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Unrecognized errors map
// to KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Message extracts the client-safe message from an error chain.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Msg
	}
	return "internal error"
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

const maxRowErrorLen = 120

// Sanitize truncates a failure string to a length safe for row storage and
// status payloads. Callers must have already stripped provider identity.
func Sanitize(msg string) string {
	if len(msg) > maxRowErrorLen {
		return msg[:maxRowErrorLen]
	}
	return msg
}
