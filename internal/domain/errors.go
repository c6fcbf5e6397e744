package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error for callers and the HTTP boundary.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindStaleQuote          Kind = "stale_quote"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindRoundClosed         Kind = "round_closed"
)

// Sentinels for errors.Is. A returned *Error matches the sentinel of the
// same Kind regardless of its messages.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrStaleQuote          = &Error{Kind: KindStaleQuote}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
	ErrRoundClosed         = &Error{Kind: KindRoundClosed}
)

// Error carries a machine-readable kind plus human-readable messages.
type Error struct {
	Kind     Kind
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + strings.Join(e.Messages, "; ")
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Messages: []string{fmt.Sprintf(format, args...)}}
}

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func StaleQuotef(format string, args ...any) *Error {
	return newError(KindStaleQuote, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newError(KindConcurrencyConflict, format, args...)
}

func RoundClosedf(format string, args ...any) *Error {
	return newError(KindRoundClosed, format, args...)
}

// Join merges several validation failures into one error, or returns nil
// when errs holds no non-nil error.
func Join(errs ...error) error {
	var merged *Error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var de *Error
		if !errors.As(err, &de) {
			de = &Error{Kind: KindValidation, Messages: []string{err.Error()}}
		}
		if merged == nil {
			merged = &Error{Kind: de.Kind}
		}
		merged.Messages = append(merged.Messages, de.Messages...)
	}
	if merged == nil {
		return nil
	}
	return merged
}

// KindOf reports the Kind of err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Messages returns the human-readable messages carried by err.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && len(de.Messages) > 0 {
		out := make([]string, len(de.Messages))
		copy(out, de.Messages)
		return out
	}
	return []string{err.Error()}
}
