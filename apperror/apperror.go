// Package apperror defines the error taxonomy shared by the REST handlers and
// the realtime relay. Every business failure carries a stable Kind, a more
// specific machine code and a human readable message.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error class exposed to clients.
type Kind string

const (
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindUserNotFound    Kind = "USER_NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindBadRequest      Kind = "BAD_REQUEST"
	KindConflict        Kind = "CONFLICT"
	KindInternal        Kind = "INTERNAL"
)

// Machine codes that refine a Kind.
const (
	CodeMissingToken     = "MISSING_TOKEN"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeInvalidBody      = "INVALID_BODY"
	CodeValidation       = "VALIDATION_FAILED"
	CodeInvalidID        = "INVALID_ID"
	CodeNoActiveTeam     = "NO_ACTIVE_TEAM"
	CodeInvalidAssignee  = "INVALID_ASSIGNEE"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeDuplicateTeam    = "DUPLICATE_TEAM"
	CodeAlreadyMember    = "ALREADY_MEMBER"
	CodeAmbiguousOutcome = "AMBIGUOUS_OUTCOME"
	CodeInsufficientRole = "INSUFFICIENT_ROLE"
	CodeNotTeamAdmin     = "NOT_TEAM_ADMIN"
	CodeSenderMismatch   = "SENDER_MISMATCH"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
)

// Error is the concrete error type returned by services.
type Error struct {
	Kind    Kind
	Code    string
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

// New creates an error of the given kind. An empty code defaults to the kind.
func New(kind Kind, code, message string) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

func Unauthenticated(code, message string) *Error {
	return New(KindUnauthenticated, code, message)
}

func UserNotFound() *Error {
	return New(KindUserNotFound, "", "user not found")
}

func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

// NotFound is also returned for resources owned by another team so that
// their existence is not disclosed.
func NotFound(resource string) *Error {
	return New(KindNotFound, "", resource+" not found")
}

func BadRequest(code, message string) *Error {
	return New(KindBadRequest, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// Internal wraps an unexpected store or provider failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: string(KindInternal), Message: message, Err: err}
}

// Wrap keeps an existing *Error untouched and turns anything else into an
// internal error with the given message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Internal(message, err)
}

// As extracts the *Error from a chain, converting unknown errors to Internal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUserNotFound, KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape of an error response or error event.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Kind  Kind   `json:"kind"`
}

// ToBody renders err for clients. Internal causes are never exposed.
func ToBody(err error) Body {
	appErr := As(err)
	msg := appErr.Message
	if appErr.Kind == KindInternal && msg == "" {
		msg = "internal error"
	}
	return Body{Error: msg, Code: appErr.Code, Kind: appErr.Kind}
}
