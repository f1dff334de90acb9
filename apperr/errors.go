// Package apperr holds the typed failure reasons returned by the betting core.
//
// Every failure carries a Kind. Callers match on the kind with errors.Is against
// the exported sentinels, e.g. errors.Is(err, apperr.ErrLimitExceeded), and read
// the expected/actual context from Fields.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindInvalidFormat            Kind = "INVALID_FORMAT"
	KindDuplicateDigits          Kind = "DUPLICATE_DIGITS"
	KindProviderInactive         Kind = "PROVIDER_INACTIVE"
	KindUnsupportedGameOrBetType Kind = "UNSUPPORTED_GAME_OR_BET_TYPE"
	KindCutoffPassed             Kind = "CUTOFF_PASSED"
	KindLimitExceeded            Kind = "LIMIT_EXCEEDED"
	KindNotFound                 Kind = "NOT_FOUND"
	KindInvalidState             Kind = "INVALID_STATE"
	KindInvalidHierarchy         Kind = "INVALID_HIERARCHY"
	KindAlreadySettled           Kind = "ALREADY_SETTLED"
	KindInvalidDrawDate          Kind = "INVALID_DRAW_DATE"
	KindForbidden                Kind = "FORBIDDEN"
	KindPayoutMissing            Kind = "PAYOUT_MISSING"
)

var (
	ErrInvalidFormat            = &Error{Kind: KindInvalidFormat}
	ErrDuplicateDigits          = &Error{Kind: KindDuplicateDigits}
	ErrProviderInactive         = &Error{Kind: KindProviderInactive}
	ErrUnsupportedGameOrBetType = &Error{Kind: KindUnsupportedGameOrBetType}
	ErrCutoffPassed             = &Error{Kind: KindCutoffPassed}
	ErrLimitExceeded            = &Error{Kind: KindLimitExceeded}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrInvalidState             = &Error{Kind: KindInvalidState}
	ErrInvalidHierarchy         = &Error{Kind: KindInvalidHierarchy}
	ErrAlreadySettled           = &Error{Kind: KindAlreadySettled}
	ErrInvalidDrawDate          = &Error{Kind: KindInvalidDrawDate}
	ErrForbidden                = &Error{Kind: KindForbidden}
	ErrPayoutMissing            = &Error{Kind: KindPayoutMissing}
)

// Fields is the structured context attached to a failure.
type Fields map[string]any

type Error struct {
	Kind    Kind
	Message string
	Fields  Fields
}

func New(kind Kind, msg string, fields Fields) *Error {
	return &Error{Kind: kind, Message: msg, Fields: fields}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// Is reports a match on Kind so sentinels compare equal to any error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" when err is not a domain failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func InvalidFormat(msg string, fields Fields) *Error { return New(KindInvalidFormat, msg, fields) }

func NotFound(what string, id any) *Error {
	return New(KindNotFound, what+" not found", Fields{"id": id})
}

func InvalidState(msg string, fields Fields) *Error { return New(KindInvalidState, msg, fields) }

func InvalidHierarchy(msg string, fields Fields) *Error {
	return New(KindInvalidHierarchy, msg, fields)
}

func Forbidden(msg string, fields Fields) *Error { return New(KindForbidden, msg, fields) }
