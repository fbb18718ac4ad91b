// Package apperr defines the error kinds shared by the GraphQL and REST surfaces.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindConfiguration
	KindInvalidFilter
	KindInvalidInput
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindConfiguration:
		return "configuration"
	case KindInvalidFilter:
		return "invalid_filter"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// NotAuthorizedMessage is the message returned for every denied operation.
const NotAuthorizedMessage = "Not authorized"

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Authorization returns the error used when the gate denies an operation.
func Authorization() *Error {
	return &Error{Kind: KindAuthorization, Message: NotAuthorizedMessage}
}

// Configuration reports inconsistent metadata or a missing data source.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// InvalidFilter reports a filter that references an unknown or non-filterable field.
func InvalidFilter(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidFilter, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput reports a payload that does not match the entity columns.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown entity or a missing row.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps an error returned by the SQL engine.
func Upstream(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Kind: KindUpstream, Message: "query failed", Err: err}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error onto the REST status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindInvalidFilter, KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to send to clients.
// Upstream and unclassified errors never leak driver text.
func PublicMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return "internal error"
	}
	if appErr.Kind == KindUpstream {
		return "query failed"
	}
	return appErr.Message
}
