package papers

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/qbank/internal/normalize"
)

// Domain errors for paper operations.
var (
	ErrNotFound          = errors.New("paper not found")
	ErrDuplicatePaper    = errors.New("a paper for this course, exam type, and exam date already exists")
	ErrInvalidMetadata   = errors.New("course_code, a valid exam_type, and exam_date (YYYY-MM-DD) are required")
	ErrInvalidTransition = errors.New("paper status does not allow this operation")
	ErrAlreadyProcessing = errors.New("paper is already processing")
	ErrFileTooLarge      = errors.New("file exceeds maximum upload size")
	ErrInvalidFile       = errors.New("invalid file")
	ErrStaleAttempt      = errors.New("processing attempt is no longer current")
	ErrNotClaimable      = errors.New("paper is not claimable for processing")
)

// MapHTTPStatus maps paper domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicatePaper),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyProcessing):
		return http.StatusConflict
	case errors.Is(err, normalize.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidMetadata), errors.Is(err, ErrInvalidFile):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
