package units

import (
	"errors"
	"net/http"
)

// Domain errors for unit operations.
var (
	ErrNotFound    = errors.New("unit not found")
	ErrDuplicate   = errors.New("unit already exists")
	ErrInvalidUnit = errors.New("course_code, unit_number, and name are required")
)

// MapHTTPStatus maps unit domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidUnit):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
