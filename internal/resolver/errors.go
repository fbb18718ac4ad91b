package resolver

import (
	"context"
	"errors"
	"log/slog"

	"autoapi/internal/apperr"
	"autoapi/internal/logging"
)

// fieldError is the error handed to graphql-go. Its message is safe for
// clients and its kind is exposed as extensions.code.
type fieldError struct {
	kind    apperr.Kind
	message string
	err     error
}

func (e *fieldError) Error() string { return e.message }

func (e *fieldError) Unwrap() error { return e.err }

func (e *fieldError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.kind.String()}
}

func toFieldError(err error) error {
	if err == nil {
		return nil
	}
	return &fieldError{kind: apperr.KindOf(err), message: apperr.PublicMessage(err), err: err}
}

// relationError logs failures the engine has not already logged.
func relationError(ctx context.Context, field string, err error) error {
	if apperr.Is(err, apperr.KindUpstream) || apperr.Is(err, apperr.KindConfiguration) || apperr.KindOf(err) == apperr.KindUnknown {
		attrs := []any{slog.String("field", field), slog.String("error", err.Error())}
		if cause := errors.Unwrap(err); cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}
		logging.FromContext(ctx).Error("relation load failed", attrs...)
	}
	return toFieldError(err)
}
