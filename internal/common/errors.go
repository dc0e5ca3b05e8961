package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
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

// Pipeline error taxonomy. ErrRender and ErrTransport abort a case when they
// hit document-wide work; ErrRecognition stays confined to a single page;
// ErrSchema and ErrValidation are never fatal.
var (
	ErrRender       = errors.New("document render failed")
	ErrAuth         = errors.New("provider authentication failed")
	ErrRecognition  = errors.New("page recognition failed")
	ErrSchema       = errors.New("malformed field descriptor")
	ErrValidation   = errors.New("extracted record failed validation")
	ErrTransport    = errors.New("provider transport error")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
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
