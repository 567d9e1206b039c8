package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Processing error taxonomy. Every category except ErrAdapterUnavailable
// propagates to the state machine and marks the document FAILED;
// ErrAdapterUnavailable is absorbed by the executor's fallback chain and
// never surfaces as a document failure.
var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrAdapterUnavailable  = errors.New("adapter unavailable")
	ErrEngineTimeout       = errors.New("engine timeout")
	ErrEngineHTTP          = errors.New("engine http error")
	ErrMalformedEngineOut  = errors.New("malformed engine output")
	ErrStorage             = errors.New("storage error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
