package apperr

import (
	"errors"
	"fmt"
)

const unavailableMessage = "service temporarily unavailable, try again"

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Unauthorized(msg string) error {
	return New(CodeUnauthorized, msg)
}

func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func InvalidArgument(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func Conflict(msg string) error {
	return New(CodeConflict, msg)
}

// Unavailable wraps a store or dependency failure. The core does not retry.
func Unavailable(msg string, cause error) error {
	return Wrap(CodeUnavailable, msg, cause)
}

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Public returns the code and a message safe to hand to clients. Causes are
// never exposed.
func Public(err error) (Code, string) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return CodeInternal, "internal error"
	}
	switch appErr.Code {
	case CodeUnavailable:
		return appErr.Code, unavailableMessage
	case CodeInternal:
		return appErr.Code, "internal error"
	}
	return appErr.Code, appErr.Message
}
