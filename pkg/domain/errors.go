package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the staging and sync pipeline.
type ErrorKind string

const (
	KindStoreUnavailable     ErrorKind = "store_unavailable"
	KindStepIncomplete       ErrorKind = "step_incomplete"
	KindSubmissionInProgress ErrorKind = "submission_in_progress"
	KindNetworkUnavailable   ErrorKind = "network_unavailable"
	KindRemoteRejected       ErrorKind = "remote_rejected"
	KindTimeout              ErrorKind = "timeout"
	KindInvalidStep          ErrorKind = "invalid_step"
	KindCampUnavailable      ErrorKind = "camp_unavailable"
)

// Error is the typed failure returned across component boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether repeating the operation may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindStoreUnavailable, KindSubmissionInProgress, KindNetworkUnavailable, KindRemoteRejected, KindTimeout:
		return true
	}
	return false
}

// Sentinels for errors.Is checks. Compare with errors.Is, never by identity.
var (
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable, Message: "local store unavailable"}
	ErrStepIncomplete       = &Error{Kind: KindStepIncomplete, Message: "step incomplete"}
	ErrSubmissionInProgress = &Error{Kind: KindSubmissionInProgress, Message: "submission in progress"}
	ErrNetworkUnavailable   = &Error{Kind: KindNetworkUnavailable, Message: "network unavailable"}
	ErrRemoteRejected       = &Error{Kind: KindRemoteRejected, Message: "remote rejected"}
	ErrTimeout              = &Error{Kind: KindTimeout, Message: "timeout"}
	ErrInvalidStep          = &Error{Kind: KindInvalidStep, Message: "invalid step transition"}
	ErrCampUnavailable      = &Error{Kind: KindCampUnavailable, Message: "camp unavailable"}
)

// NewError builds a typed error of kind with message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed error of kind that wraps cause.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// StoreUnavailable wraps a storage-layer fault.
func StoreUnavailable(op string, cause error) *Error {
	return Wrap(KindStoreUnavailable, "staging store "+op, cause)
}

// KindOf extracts the kind of a typed error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
