// Package pipelineerr implements the error taxonomy of spec.md §7 as a
// typed wrapper error, the same shape as pkg/config/errors.go's
// ValidationError/LoadError: a struct implementing Error()/Unwrap(),
// constructed through named helpers rather than ad-hoc fmt.Errorf calls
// at every call site.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy spec.md §7 names as a contract. Internal
// classes may differ; callers should match on Kind via errors.As, never
// on message text.
type Kind string

// Recognized error kinds.
const (
	KindValidation   Kind = "Validation"
	KindAuthorization Kind = "Authorization"
	KindRateLimited  Kind = "RateLimited"
	KindTransient    Kind = "Transient"
	KindPermanent    Kind = "Permanent"
	KindInternal     Kind = "Internal"
)

// retryableKinds records which kinds are retryable by default; Transient
// and RateLimited are the only ones a caller should ever retry.
var retryableKinds = map[Kind]bool{
	KindTransient:   true,
	KindRateLimited: true,
}

// Error is the taxonomy-carrying error type every pipeline component
// returns instead of a bare error for conditions spec.md §7 names.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Context   map[string]string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, pipelineerr.Cancelled()) style matching:
// any *Error target matches by Kind, not identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error of the given kind with the default
// retryability for that kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: retryableKinds[kind],
		Cause:     cause,
	}
}

// WithContext attaches redacted key/value context, returning e for
// chaining.
func (e *Error) WithContext(kv map[string]string) *Error {
	e.Context = kv
	return e
}

// Validation, Transient, Permanent, Authorization, RateLimited, Internal
// are convenience constructors matching the §7 taxonomy by name.
func Validation(message string, cause error) *Error    { return New(KindValidation, message, cause) }
func Transient(message string, cause error) *Error     { return New(KindTransient, message, cause) }
func Permanent(message string, cause error) *Error     { return New(KindPermanent, message, cause) }
func Authorization(message string, cause error) *Error { return New(KindAuthorization, message, cause) }
func RateLimited(message string, cause error) *Error   { return New(KindRateLimited, message, cause) }
func Internal(message string, cause error) *Error      { return New(KindInternal, message, cause) }

// KindCancelled marks a transcript interrupted by cooperative
// cancellation (spec.md §7) — distinct from KindTransient so callers can
// tell a cancelled unit of work apart from a retryable network failure.
const KindCancelled Kind = "Cancelled"

// Cancelled returns a fresh Cancelled *Error.
func Cancelled() *Error {
	return &Error{Kind: KindCancelled, Message: "processing cancelled", Retryable: false}
}

// KindNotFound marks a lookup that found nothing the caller is entitled
// to see — spec.md §4.9 requires job lookups from the wrong owner token
// to return NotFound rather than Authorization, since job ids are
// otherwise enumerable and a Forbidden/Authorization response would leak
// that a given id exists at all.
const KindNotFound Kind = "NotFound"

// NotFound returns a fresh NotFound *Error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Retryable: false}
}
