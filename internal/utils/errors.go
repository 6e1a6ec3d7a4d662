package utils

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
)

type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewBadRequestError(message string, details any) *APIError {
	return &APIError{
		StatusCode: fiber.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		Details:    details,
	}
}

func NewInputFormatError(message string, details any) *APIError {
	return &APIError{
		StatusCode: fiber.StatusUnprocessableEntity,
		Code:       "INPUT_FORMAT",
		Message:    message,
		Details:    details,
	}
}

// NewReferenceDataError covers a missing or unreadable lookup/template
// table: the output schema cannot be determined, so the run never starts.
func NewReferenceDataError(message string) *APIError {
	return &APIError{
		StatusCode: fiber.StatusServiceUnavailable,
		Code:       "REFERENCE_DATA",
		Message:    message,
	}
}

func NewInternalError(err error) *APIError {
	return &APIError{
		StatusCode: fiber.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    "An internal error occurred",
		Details:    err.Error(),
	}
}

func NewNotFoundError(resource string) *APIError {
	return &APIError{
		StatusCode: fiber.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
	}
}

// ErrorHandler is a middleware to handle APIError
func ErrorHandler(c fiber.Ctx, err error) error {
	apiErr, ok := err.(*APIError)
	if !ok {
		apiErr = NewInternalError(err)
	}

	return c.Status(apiErr.StatusCode).JSON(apiErr)
}
