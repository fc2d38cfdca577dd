package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"tamcal/domain/core"
)

// AppError is an error carrying a stable code for CLI exit paths and API
// responses.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeDataShape          = "DATA_SHAPE"
	CodeNumericInstability = "NUMERIC_INSTABILITY"
	CodeFitFailure         = "FIT_FAILURE"
	CodeNotFound           = "NOT_FOUND"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeCancelled          = "CANCELLED"
	CodeBusy               = "BUSY"
	CodeInternalError      = "INTERNAL_ERROR"
)

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap adds context to err. An existing code is kept; otherwise the code is
// derived from the domain sentinel err wraps.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: Classify(err), Message: message, Cause: err}
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode forces the code of err
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: err.Error(), Cause: err}
}

// Classify maps err to an error code
func Classify(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case stderrors.Is(err, core.ErrConfig):
		return CodeConfigInvalid
	case stderrors.Is(err, core.ErrDataShape):
		return CodeDataShape
	case stderrors.Is(err, core.ErrNumericInstability):
		return CodeNumericInstability
	case stderrors.Is(err, core.ErrFitFailure):
		return CodeFitFailure
	case stderrors.Is(err, core.ErrNotFound):
		return CodeNotFound
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	}
	return CodeInternalError
}

// GetCode returns the code of err, or "UNKNOWN" for nil
func GetCode(err error) string {
	if err == nil {
		return "UNKNOWN"
	}
	return Classify(err)
}

// HTTPStatus maps a code onto the response status used by the API
func HTTPStatus(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput, CodeConfigInvalid, CodeDataShape:
		return http.StatusBadRequest
	case CodeFitFailure, CodeNumericInstability:
		return http.StatusUnprocessableEntity
	case CodeCancelled:
		return http.StatusRequestTimeout
	case CodeBusy:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
