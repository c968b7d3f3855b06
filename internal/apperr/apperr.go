// Package apperr defines the error kinds shared by the gateways, the service and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and HTTP mapping decisions.
type Kind int

const (
	KindPermanent Kind = iota
	KindValidation
	KindAuthMissing
	KindAuthInvalid
	KindNotFound
	KindQuotaExceeded
	KindConflict
	KindTransient
	KindMissingIcons
	KindRenderFailed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthMissing:
		return "auth_missing"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindNotFound:
		return "not_found"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindMissingIcons:
		return "missing_icons"
	case KindRenderFailed:
		return "render_failed"
	default:
		return "permanent"
	}
}

// Error is the typed error carried across layers.
type Error struct {
	Kind    Kind
	Message string

	// MissingIcons lists filenames for KindMissingIcons.
	MissingIcons []string
	// Retryable and ErrorType are set for classified render failures.
	Retryable bool
	ErrorType string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(msg string) *Error      { return New(KindNotFound, msg) }
func Validation(msg string) *Error    { return New(KindValidation, msg) }
func QuotaExceeded(msg string) *Error { return New(KindQuotaExceeded, msg) }

// MissingIcons reports a render aborted because referenced icons are unavailable.
func MissingIcons(names []string) *Error {
	return &Error{
		Kind:         KindMissingIcons,
		Message:      "some icons referenced by the resume are missing",
		MissingIcons: names,
	}
}

// KindOf returns the kind of the first *Error in err's chain, KindPermanent otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPermanent
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
