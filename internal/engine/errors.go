package engine

import (
	"errors"
	"fmt"
)

const (
	CodeValidationFailed = "VALIDATION_FAILED"

	// GeneralErrorKey holds a validation message that belongs to no field.
	GeneralErrorKey = "_error"

	validationFailedMessage = "Validation failed"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// IsValidation reports whether the error is in the normalized validation shape.
func (e *AppError) IsValidation() bool {
	return e.Code == CodeValidationFailed
}

// FieldErrors flattens the details into the per-field map rendered by forms.
// Details without a field are keyed "_error". The first message for a field wins.
func (e *AppError) FieldErrors() map[string]string {
	out := make(map[string]string, len(e.Details))
	for _, d := range e.Details {
		key := d.Field
		if key == "" {
			key = GeneralErrorKey
		}
		if _, exists := out[key]; !exists {
			out[key] = d.Message
		}
	}
	return out
}

// ErrorBody is the form-facing part of an error response.
type ErrorBody struct {
	Errors map[string]string `json:"errors"`
}

type ErrorResponse struct {
	Error *AppError  `json:"error"`
	Body  *ErrorBody `json:"body,omitempty"`
}

// NewErrorResponse builds the response for appErr, adding the per-field map
// for validation errors.
func NewErrorResponse(appErr *AppError) ErrorResponse {
	resp := ErrorResponse{Error: appErr}
	if appErr.IsValidation() {
		resp.Body = &ErrorBody{Errors: appErr.FieldErrors()}
	}
	return resp
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(resource string, id any) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %v not found", resource, id),
	}
}

func UnknownResourceError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_RESOURCE",
		Status:  404,
		Message: fmt.Sprintf("Unknown resource: %s", name),
	}
}

func UnknownFieldError(resource, field string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_FIELD",
		Status:  400,
		Message: fmt.Sprintf("Unknown filter field for %s: %s", resource, field),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Status:  422,
		Message: validationFailedMessage,
		Details: details,
	}
}

// FieldError is a validation error with a single field message.
func FieldError(field, msg string) *AppError {
	return ValidationError([]ErrorDetail{{Field: field, Message: msg}})
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

// AsValidationError returns the normalized validation error wrapped in err, if any.
func AsValidationError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.IsValidation() {
		return appErr, true
	}
	return nil, false
}
