package provider

import (
	"errors"
	"fmt"
)

// CodeNoRows is the backend code for a single-object request that matched zero rows.
const CodeNoRows = "PGRST116"

var ErrNotFound = errors.New("not found")

// DBError is an error reported by the relational backend.
type DBError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *DBError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Details)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// Is lets a no-rows DBError match ErrNotFound.
func (e *DBError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNoRows
}

// NoRowsError builds the error returned when a single-row operation matched nothing.
func NoRowsError() *DBError {
	return &DBError{
		Code:    CodeNoRows,
		Message: "Cannot coerce the result to a single JSON object",
		Details: "The result contains 0 rows",
	}
}
