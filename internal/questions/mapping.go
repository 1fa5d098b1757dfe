package questions

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

const columns = `id, paper_id, course_code, unit_id, number, parent_number, parent_id,
	canonical_id, sequence, text, page_number, page_confidence, marks, bloom_level,
	bloom_confidence, unit_confidence, difficulty, topic_tags, has_subparts, has_math,
	designation, similarity_score, state, classification_incomplete, reviewed,
	review_outcome, error, created_at, updated_at`

var projection = query.
	NewProjectionMap("public", "questions", "q").
	Project("id", "ID").
	Project("paper_id", "PaperID").
	Project("course_code", "CourseCode").
	Project("unit_id", "UnitID").
	Project("number", "Number").
	Project("parent_number", "ParentNumber").
	Project("parent_id", "ParentID").
	Project("canonical_id", "CanonicalID").
	Project("sequence", "Sequence").
	Project("text", "Text").
	Project("page_number", "PageNumber").
	Project("page_confidence", "PageConfidence").
	Project("marks", "Marks").
	Project("bloom_level", "BloomLevel").
	Project("bloom_confidence", "BloomConfidence").
	Project("unit_confidence", "UnitConfidence").
	Project("difficulty", "Difficulty").
	Project("topic_tags", "TopicTags").
	Project("has_subparts", "HasSubparts").
	Project("has_math", "HasMath").
	Project("designation", "Designation").
	Project("similarity_score", "SimilarityScore").
	Project("state", "State").
	Project("classification_incomplete", "ClassificationIncomplete").
	Project("reviewed", "Reviewed").
	Project("review_outcome", "ReviewOutcome").
	Project("error", "Error").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for question queries.
type Filters struct {
	CourseCode *string `json:"course_code,omitempty"`
	UnitID     *int64  `json:"unit_id,omitempty"`
	BloomLevel *int    `json:"bloom_level,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
	PaperID    *int64  `json:"paper_id,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("CourseCode", f.CourseCode).
		WhereEquals("UnitID", f.UnitID).
		WhereEquals("BloomLevel", f.BloomLevel).
		WhereEquals("Difficulty", f.Difficulty).
		WhereEquals("PaperID", f.PaperID)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Unparseable numeric values are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if c := values.Get("course_code"); c != "" {
		c = strings.ToUpper(c)
		f.CourseCode = &c
	}
	if v := values.Get("unit_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.UnitID = &id
		}
	}
	if v := values.Get("bloom_level"); v != "" {
		if level, err := strconv.Atoi(v); err == nil {
			f.BloomLevel = &level
		}
	}
	if d := values.Get("difficulty"); d != "" {
		if len(d) > 1 {
			d = strings.ToUpper(d[:1]) + strings.ToLower(d[1:])
		}
		f.Difficulty = &d
	}
	if v := values.Get("paper_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.PaperID = &id
		}
	}

	return f
}

func scanQuestion(s repository.Scanner) (Question, error) {
	var (
		q    Question
		tags []byte
	)
	err := s.Scan(
		&q.ID,
		&q.PaperID,
		&q.CourseCode,
		&q.UnitID,
		&q.Number,
		&q.ParentNumber,
		&q.ParentID,
		&q.CanonicalID,
		&q.Sequence,
		&q.Text,
		&q.PageNumber,
		&q.PageConfidence,
		&q.Marks,
		&q.BloomLevel,
		&q.BloomConfidence,
		&q.UnitConfidence,
		&q.Difficulty,
		&tags,
		&q.HasSubparts,
		&q.HasMath,
		&q.Designation,
		&q.SimilarityScore,
		&q.State,
		&q.ClassificationIncomplete,
		&q.Reviewed,
		&q.ReviewOutcome,
		&q.Error,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return q, err
	}

	q.TopicTags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &q.TopicTags); err != nil {
			return q, err
		}
	}
	return q, nil
}
