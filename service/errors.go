package service

import (
	"errors"
	"net/http"

	"health-screening/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("admin role required")
	ErrInvalidPhotoPath   = errors.New("invalid photo path")
	ErrVerificationFailed = errors.New("phone verification failed")
	ErrUnsupportedFormat  = errors.New("unsupported export format")
)

// ValidationError carries field-level failures for admin bodies
type ValidationError struct {
	Fields []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// IntakeError is a terminal intake failure mapped to an HTTP status
type IntakeError struct {
	Status  int
	Message string
	Fields  []models.FieldError
	Err     error
}

func (e *IntakeError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *IntakeError) Unwrap() error {
	return e.Err
}

func badRequest(msg string, fields []models.FieldError) *IntakeError {
	return &IntakeError{Status: http.StatusBadRequest, Message: msg, Fields: fields}
}

func internalError(err error) *IntakeError {
	return &IntakeError{Status: http.StatusInternalServerError, Message: "Internal server error", Err: err}
}
