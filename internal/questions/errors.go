package questions

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound  = errors.New("question not found")
	ErrDuplicate = errors.New("question already exists")
)

// MapHTTPStatus maps a question domain error to an HTTP status code.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
