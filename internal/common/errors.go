package common

import (
	"errors"
	"net/http"
)

// AppError carries an API error code and HTTP status alongside the
// underlying cause.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap attaches an API code, message and HTTP status to err.
func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// AsAppError extracts the AppError in err's chain, falling back to an
// internal-error wrapper for plain errors.
func AsAppError(err error) *AppError {
	var app *AppError
	if errors.As(err, &app) {
		return app
	}
	return &AppError{Code: "INTERNAL", Message: err.Error(), Status: http.StatusInternalServerError, Err: err}
}
