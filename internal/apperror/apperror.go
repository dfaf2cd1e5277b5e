// Package apperror carries the HTTP-facing classification of domain errors.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("unavailable")
	ErrInternal     = errors.New("internal server error")
)

// AppError is a classified error with a client-safe message. Err is the
// underlying cause and is logged, never rendered.
type AppError struct {
	BaseError error
	Message   string
	Details   string
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (details: %s, cause: %v)", e.BaseError, e.Message, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s (details: %s)", e.BaseError, e.Message, e.Details)
}

func (e *AppError) Unwrap() error {
	return e.BaseError
}

func New(base error, msg, details string, err error) *AppError {
	return &AppError{BaseError: base, Message: msg, Details: details, Err: err}
}

func NewNotFound(resource, identifier string) *AppError {
	return New(ErrNotFound,
		fmt.Sprintf("%s not found", resource),
		fmt.Sprintf("%s with identifier '%s' was not found", resource, identifier),
		nil)
}

func NewInvalidInput(msg string, err error) *AppError {
	return New(ErrInvalidInput, msg, "", err)
}

func NewUnauthorized(msg string) *AppError {
	return New(ErrUnauthorized, msg, "", nil)
}

// NewUnavailable reports a temporary condition the client can retry after.
func NewUnavailable(msg string, err error) *AppError {
	return New(ErrUnavailable, msg, "", err)
}

func NewInternal(details string, err error) *AppError {
	return New(ErrInternal, "An internal server error occurred", details, err)
}

// ToHTTPStatus maps err onto a status code; unclassified errors are 500.
func ToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (e *AppError) ToJSON() gin.H {
	return gin.H{
		"error":   e.BaseError.Error(),
		"message": e.Message,
	}
}
