package papers

import (
	"net/url"
	"strings"

	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

const columns = `id, course_code, exam_type, exam_date, academic_year, semester_type,
	filename, content_type, storage_key, file_size, page_count, status, progress,
	total_extracted, in_review, ocr_confidence, attempt, error, created_at, updated_at`

var projection = query.
	NewProjectionMap("public", "papers", "p").
	Project("id", "ID").
	Project("course_code", "CourseCode").
	Project("exam_type", "ExamType").
	Project("exam_date", "ExamDate").
	Project("academic_year", "AcademicYear").
	Project("semester_type", "SemesterType").
	Project("filename", "Filename").
	Project("content_type", "ContentType").
	Project("storage_key", "StorageKey").
	Project("file_size", "FileSize").
	Project("page_count", "PageCount").
	Project("status", "Status").
	Project("progress", "Progress").
	Project("total_extracted", "TotalExtracted").
	Project("in_review", "InReview").
	Project("ocr_confidence", "OCRConfidence").
	Project("attempt", "Attempt").
	Project("error", "Error").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for paper queries.
type Filters struct {
	CourseCode *string   `json:"course_code,omitempty"`
	Status     *Status   `json:"status,omitempty"`
	ExamType   *ExamType `json:"exam_type,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("CourseCode", f.CourseCode).
		WhereEquals("Status", f.Status).
		WhereEquals("ExamType", f.ExamType)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if c := values.Get("course_code"); c != "" {
		c = strings.ToUpper(c)
		f.CourseCode = &c
	}
	if s := values.Get("status"); s != "" {
		status := Status(strings.ToUpper(s))
		f.Status = &status
	}
	if e := values.Get("exam_type"); e != "" {
		et := ExamType(e)
		f.ExamType = &et
	}

	return f
}

func scanPaper(s repository.Scanner) (Paper, error) {
	var p Paper
	err := s.Scan(
		&p.ID,
		&p.CourseCode,
		&p.ExamType,
		&p.ExamDate,
		&p.AcademicYear,
		&p.SemesterType,
		&p.Filename,
		&p.ContentType,
		&p.StorageKey,
		&p.FileSize,
		&p.PageCount,
		&p.Status,
		&p.Progress,
		&p.TotalExtracted,
		&p.InReview,
		&p.OCRConfidence,
		&p.Attempt,
		&p.Error,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanEvent(s repository.Scanner) (Event, error) {
	var (
		e      Event
		detail []byte
	)
	err := s.Scan(&e.ID, &e.PaperID, &e.Attempt, &e.Stage, &detail, &e.CreatedAt)
	if len(detail) > 0 {
		e.Detail = detail
	}
	return e, err
}
