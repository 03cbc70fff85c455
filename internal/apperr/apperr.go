// Package apperr classifies failures so callers can decide whether to
// retry, explain, or refuse.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Validation    Kind = "VALIDATION"
	RuleViolation Kind = "RULE_VIOLATION"
	NotFound      Kind = "NOT_FOUND"
	Conflict      Kind = "CONFLICT"
	Transport     Kind = "TRANSPORT"
	Forbidden     Kind = "FORBIDDEN"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. The wrapped error stays reachable through errors.Is.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of the outermost classified error in the chain.
// Unclassified errors are treated as storage or network failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Transport
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable is true only for transport failures and conflicts.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Transport, Conflict:
		return true
	default:
		return false
	}
}
