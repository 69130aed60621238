package workflow

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindInvalidState Kind = "invalid_state"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindPersistence  Kind = "persistence"
	KindForbidden    Kind = "forbidden"
)

// Error is the typed failure returned at the command boundary. Rule names the
// violated invariant so callers can surface it verbatim.
type Error struct {
	Kind Kind
	Rule string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// regardless of rule or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Rule == "" || t.Rule == e.Rule)
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrPersistence  = &Error{Kind: KindPersistence}
	ErrForbidden    = &Error{Kind: KindForbidden}
)

func NewValidationError(rule string, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Rule: rule, Msg: fmt.Sprintf(format, args...)}
}

func NewInvalidStateError(rule string, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Rule: rule, Msg: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Rule: "not_found", Msg: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Rule: "concurrent_modification", Msg: fmt.Sprintf(format, args...)}
}

func NewForbiddenError(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Rule: "role_not_permitted", Msg: fmt.Sprintf(format, args...)}
}

// NewPersistenceError wraps a storage failure that aborted the command.
func NewPersistenceError(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Rule: "durable_write", Msg: op + " failed", Err: err}
}

// KindOf returns the kind of a workflow error, or "" for foreign errors.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// RuleOf returns the violated rule of a workflow error.
func RuleOf(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.Rule
	}
	return ""
}
