package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine error. Handlers map kinds (not messages) to status codes.
type Kind string

const (
	KindPermissionDenied  Kind = "permission_denied"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
)

var httpStatusMap = map[Kind]int{
	KindPermissionDenied:  http.StatusForbidden,
	KindInvalidTransition: http.StatusUnprocessableEntity,
	KindConflict:          http.StatusConflict,
	KindNotFound:          http.StatusNotFound,
	KindValidation:        http.StatusBadRequest,
}

// Error is the single error type returned by the engine to its callers.
type Error struct {
	Kind    Kind
	Reason  string // policy reason code, PermissionDenied only
	From    string // InvalidTransition only
	To      string // InvalidTransition only
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code a handler should answer with.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatusMap[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// PermissionDenied reports a Denied policy decision.
func PermissionDenied(reason string) *Error {
	return &Error{
		Kind:    KindPermissionDenied,
		Reason:  reason,
		Message: fmt.Sprintf("permission denied (%s)", reason),
	}
}

// InvalidTransition reports a status change the lifecycle does not allow.
func InvalidTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("invalid transition from %s to %s", from, to),
	}
}

// Conflict reports a lost compare-and-set or a lock state that is already in place.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NotFound reports a missing risk, department or identity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// Validation reports malformed input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Validationf wraps a cause, typically a validator.ValidationErrors.
func Validationf(err error, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err is or wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ReasonOf returns the policy reason carried by a PermissionDenied error.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

// As is a typed shorthand for errors.As.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// Response returns the status code and JSON body a handler should send for err.
// Errors that are not an *Error map to a 500 with a generic message.
func Response(err error) (int, map[string]any) {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError, map[string]any{"error": "internal server error"}
	}
	body := map[string]any{
		"error": appErr.Message,
		"kind":  appErr.Kind,
	}
	if appErr.Reason != "" {
		body["reason"] = appErr.Reason
	}
	if appErr.Kind == KindInvalidTransition {
		body["from"] = appErr.From
		body["to"] = appErr.To
	}
	return appErr.HTTPStatus(), body
}
