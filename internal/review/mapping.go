package review

import (
	"net/url"
	"strings"

	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "review_queue", "r").
	Project("id", "ID").
	Project("question_id", "QuestionID").
	Project("paper_id", "PaperID").
	Project("course_code", "CourseCode").
	Project("issue_type", "IssueType").
	Project("priority", "Priority").
	Project("status", "Status").
	Project("suggestion", "Suggestion").
	Project("notes", "Notes").
	Project("rejections", "Rejections").
	Project("created_at", "CreatedAt").
	Project("resolved_at", "ResolvedAt").
	Join("public", "questions", "q", "JOIN", "q.id = r.question_id").
	Project("number", "QuestionNumber").
	Project("text", "QuestionText").
	Join("public", "papers", "p", "JOIN", "p.id = r.paper_id").
	Project("created_at", "PaperCreatedAt")

var defaultSort = []query.SortField{
	{Field: "Priority", Descending: true},
	{Field: "PaperCreatedAt", Descending: true},
	{Field: "ID"},
}

// Filters contains optional filtering criteria for queue queries.
type Filters struct {
	CourseCode *string    `json:"course_code,omitempty"`
	IssueType  *IssueType `json:"issue_type,omitempty"`
	Status     *Status    `json:"status,omitempty"`
	PaperID    *int64     `json:"paper_id,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("CourseCode", f.CourseCode).
		WhereEquals("IssueType", f.IssueType).
		WhereEquals("Status", f.Status).
		WhereEquals("PaperID", f.PaperID)
}

// FiltersFromQuery extracts filter values from URL query parameters. The
// status filter defaults to PENDING; status=all lists every entry.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if c := values.Get("course_code"); c != "" {
		c = strings.ToUpper(c)
		f.CourseCode = &c
	}
	if t := values.Get("issue_type"); t != "" {
		it := IssueType(strings.ToUpper(t))
		f.IssueType = &it
	}

	switch s := strings.ToUpper(values.Get("status")); s {
	case "ALL":
	case "":
		pending := StatusPending
		f.Status = &pending
	default:
		status := Status(s)
		f.Status = &status
	}

	return f
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var (
		e          Entry
		suggestion []byte
	)
	err := s.Scan(
		&e.ID,
		&e.QuestionID,
		&e.PaperID,
		&e.CourseCode,
		&e.IssueType,
		&e.Priority,
		&e.Status,
		&suggestion,
		&e.Notes,
		&e.Rejections,
		&e.CreatedAt,
		&e.ResolvedAt,
		&e.QuestionNumber,
		&e.QuestionText,
		&e.PaperCreatedAt,
	)
	if len(suggestion) > 0 {
		e.Suggestion = suggestion
	}
	return e, err
}
