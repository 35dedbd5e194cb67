package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the pipeline can decide whether to
// degrade to the next tier or surface the error.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindSourceUnavailable ErrorKind = "source_unavailable"
	KindDataAbsent        ErrorKind = "data_absent"
	KindConfiguration     ErrorKind = "configuration"
	KindNotFound          ErrorKind = "not_found"
)

// ErrCancelled is returned when the caller abandons a resolution.
var ErrCancelled = errors.New("resolution cancelled")

// Error represents a domain-specific error with context.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := "[" + string(e.Kind) + "]"
	if e.Op != "" {
		prefix += " " + e.Op + ":"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind, so callers can
// write errors.Is(err, &domain.Error{Kind: domain.KindConfiguration}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func ValidationError(op, message string, err error) *Error {
	return NewError(KindValidation, op, message, err)
}

func SourceUnavailable(op, message string, err error) *Error {
	return NewError(KindSourceUnavailable, op, message, err)
}

func DataAbsent(op, message string) *Error {
	return NewError(KindDataAbsent, op, message, nil)
}

func ConfigError(op, message string, err error) *Error {
	return NewError(KindConfiguration, op, message, err)
}

func NotFoundError(op, message string) *Error {
	return NewError(KindNotFound, op, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsConfiguration reports whether err is a configuration failure.
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsSourceUnavailable reports whether err means an upstream could not answer.
func IsSourceUnavailable(err error) bool {
	return KindOf(err) == KindSourceUnavailable
}
