// Package papers implements the exam paper domain: upload acceptance,
// metadata, the processing status state machine, progress tracking, and the
// per-paper event log that records stage completions.
package papers

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Status is the processing state of a paper.
type Status string

const (
	StatusUploaded        Status = "UPLOADED"
	StatusMetadataPending Status = "METADATA_PENDING"
	StatusProcessing      Status = "PROCESSING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusUploaded:        {StatusMetadataPending},
	StatusMetadataPending: {StatusProcessing, StatusFailed},
	StatusProcessing:      {StatusCompleted, StatusFailed},
	StatusFailed:          {StatusProcessing},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// ExamType identifies the assessment a paper belongs to.
type ExamType string

const (
	ExamCIE1           ExamType = "CIE 1"
	ExamCIE2           ExamType = "CIE 2"
	ExamImprovementCIE ExamType = "Improvement CIE"
	ExamSEE            ExamType = "SEE"
)

var examTypes = []ExamType{ExamCIE1, ExamCIE2, ExamImprovementCIE, ExamSEE}

// Valid reports whether t is a known exam type.
func (t ExamType) Valid() bool {
	return slices.Contains(examTypes, t)
}

// Semester is the term parity of the course offering.
type Semester string

const (
	SemesterOdd  Semester = "ODD"
	SemesterEven Semester = "EVEN"
)

// Paper is one uploaded exam paper.
type Paper struct {
	ID             int64      `json:"id"`
	CourseCode     *string    `json:"course_code"`
	ExamType       *ExamType  `json:"exam_type"`
	ExamDate       *time.Time `json:"exam_date"`
	AcademicYear   *int       `json:"academic_year"`
	SemesterType   *Semester  `json:"semester_type"`
	Filename       string     `json:"filename"`
	ContentType    string     `json:"content_type"`
	StorageKey     string     `json:"storage_key"`
	FileSize       int64      `json:"file_size"`
	PageCount      *int       `json:"page_count"`
	Status         Status     `json:"status"`
	Progress       float64    `json:"progress"`
	TotalExtracted int        `json:"total_extracted"`
	InReview       int        `json:"in_review"`
	OCRConfidence  *float64   `json:"ocr_confidence"`
	Attempt        int        `json:"attempt"`
	Error          *string    `json:"error"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BlobPrefix returns the storage prefix shared by the paper's source file
// and every artifact derived from it.
func (p *Paper) BlobPrefix() string {
	parts := strings.SplitN(p.StorageKey, "/", 3)
	if len(parts) < 3 {
		return p.StorageKey
	}
	return parts[0] + "/" + parts[1] + "/"
}

// StatusView is the polling projection of a paper.
type StatusView struct {
	ID             int64   `json:"id"`
	Status         Status  `json:"status"`
	Progress       float64 `json:"progress"`
	TotalExtracted int     `json:"total_extracted"`
	InReview       int     `json:"in_review"`
	Attempt        int     `json:"attempt"`
	Error          *string `json:"error,omitempty"`
}

// View projects the paper into its polling status.
func (p *Paper) View() StatusView {
	return StatusView{
		ID:             p.ID,
		Status:         p.Status,
		Progress:       p.Progress,
		TotalExtracted: p.TotalExtracted,
		InReview:       p.InReview,
		Attempt:        p.Attempt,
		Error:          p.Error,
	}
}

// Metadata identifies the exam a paper belongs to.
// ExamDate uses the YYYY-MM-DD layout.
type Metadata struct {
	CourseCode   string    `json:"course_code"`
	ExamType     ExamType  `json:"exam_type"`
	ExamDate     string    `json:"exam_date"`
	AcademicYear *int      `json:"academic_year,omitempty"`
	SemesterType *Semester `json:"semester_type,omitempty"`
}

// Validate normalizes the metadata and returns the parsed exam date.
func (m *Metadata) Validate() (time.Time, error) {
	m.CourseCode = strings.ToUpper(strings.TrimSpace(m.CourseCode))
	if m.CourseCode == "" {
		return time.Time{}, ErrInvalidMetadata
	}
	if !m.ExamType.Valid() {
		return time.Time{}, ErrInvalidMetadata
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(m.ExamDate))
	if err != nil {
		return time.Time{}, ErrInvalidMetadata
	}
	if m.SemesterType != nil && *m.SemesterType != SemesterOdd && *m.SemesterType != SemesterEven {
		return time.Time{}, ErrInvalidMetadata
	}
	if m.AcademicYear != nil && (*m.AcademicYear < 1 || *m.AcademicYear > 4) {
		return time.Time{}, ErrInvalidMetadata
	}
	return date, nil
}

// SubmitCommand carries an uploaded file and optional metadata.
// With complete metadata the paper proceeds directly to processing.
type SubmitCommand struct {
	Data        []byte
	Filename    string
	ContentType string
	PageCount   *int
	Metadata    *Metadata
}

// Stage names a completed step in a paper's event log.
type Stage string

const (
	StageAccepted   Stage = "accepted"
	StageMetadata   Stage = "metadata"
	StageNormalized Stage = "normalized"
	StageSegmented  Stage = "segmented"
	StageFinalized  Stage = "finalized"
	StageFailed     Stage = "failed"
	StageRetried    Stage = "retried"
)

// Event is one entry of a paper's stage-completion log.
type Event struct {
	ID        int64           `json:"id"`
	PaperID   int64           `json:"paper_id"`
	Attempt   int             `json:"attempt"`
	Stage     Stage           `json:"stage"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Latest returns the most recent event for stage, or nil.
func Latest(events []Event, stage Stage) *Event {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Stage == stage {
			return &events[i]
		}
	}
	return nil
}
