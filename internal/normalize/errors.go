package normalize

import "errors"

// Normalization errors. Both are fatal for the paper.
var (
	ErrUnsupportedFormat = errors.New("unsupported format: only PDF and DOCX files are accepted")
	ErrExtractionError   = errors.New("no page could be read from the document")
)

// ErrTranscriptionUnavailable is returned when a scanned page could not be
// rendered or transcribed within the retry budget. It is transient: the
// attempt is redelivered rather than failed.
var ErrTranscriptionUnavailable = errors.New("page transcription unavailable")
