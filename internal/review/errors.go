package review

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("review entry not found")
	ErrDuplicate         = errors.New("question already has an open review entry")
	ErrInvalidCorrection = errors.New("invalid correction")
	// ErrAlreadyCommitted is returned when the question was processed by an
	// earlier commit.
	ErrAlreadyCommitted = errors.New("question already processed")
)

// MapHTTPStatus maps a review domain error to an HTTP status code.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrAlreadyCommitted):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCorrection):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
