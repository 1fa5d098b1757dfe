// Package review routes processed questions either to automatic approval
// or to the admin review queue, and resolves queue entries.
//
// A question is approved directly when no issue flags are raised. Otherwise
// exactly one pending entry is opened for it, carrying the most urgent
// issue type as its priority and the classifier's output as a suggested
// correction. Approving or rejecting a closed entry is a no-op.
package review

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/JaimeStill/qbank/internal/classify"
)

// IssueType names why a question needs review.
type IssueType string

const (
	IssueExtractionError IssueType = "EXTRACTION_ERROR"
	IssueAmbiguousUnit   IssueType = "AMBIGUOUS_UNIT"
	IssueLowConfidence   IssueType = "LOW_CONFIDENCE"
)

var priorities = map[IssueType]int{
	IssueExtractionError: 3,
	IssueAmbiguousUnit:   2,
	IssueLowConfidence:   1,
}

// Priority returns the base urgency of an issue type; higher is more urgent.
func (t IssueType) Priority() int {
	return priorities[t]
}

// Valid reports whether t is a known issue type.
func (t IssueType) Valid() bool {
	_, ok := priorities[t]
	return ok
}

// Status is the resolution state of a queue entry.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCorrected Status = "CORRECTED"
)

// Outcomes recorded on the question itself.
const (
	OutcomeAutoApproved    = "AUTO_APPROVED"
	OutcomeNeedsCorrection = "NEEDS_CORRECTION"
)

// Entry is one open or resolved review queue item.
type Entry struct {
	ID             int64           `json:"id"`
	QuestionID     int64           `json:"question_id"`
	PaperID        int64           `json:"paper_id"`
	CourseCode     string          `json:"course_code"`
	IssueType      IssueType       `json:"issue_type"`
	Priority       int             `json:"priority"`
	Status         Status          `json:"status"`
	Suggestion     json.RawMessage `json:"suggestion,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	Rejections     int             `json:"rejections"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	QuestionNumber string          `json:"question_number"`
	QuestionText   string          `json:"question_text"`
	PaperCreatedAt time.Time       `json:"paper_created_at"`
}

// Suggestion is the payload stored with an entry: every raised flag and the
// automated classification the admin is asked to confirm or correct.
type Suggestion struct {
	Flags           []IssueType            `json:"flags"`
	UnitID          *int64                 `json:"unit_id"`
	UnitConfidence  *float64               `json:"unit_confidence"`
	Alternatives    []classify.Alternative `json:"alternatives,omitempty"`
	BloomLevel      *int                   `json:"bloom_level"`
	BloomConfidence *float64               `json:"bloom_confidence"`
	Marks           *int                   `json:"marks"`
	Difficulty      classify.Difficulty    `json:"difficulty,omitempty"`
	PageConfidence  *float64               `json:"page_confidence,omitempty"`
	Incomplete      bool                   `json:"classification_incomplete,omitempty"`
	CanonicalID     *int64                 `json:"canonical_id,omitempty"`
	SimilarityScore *float64               `json:"similarity_score,omitempty"`
}

// Thresholds gate automatic approval.
type Thresholds struct {
	LowConfidence   float64
	AmbiguityMargin float64
	PageConfidence  float64
}

// Assess returns the issue flags raised by a classification, most urgent
// first. An empty result means the question can be approved automatically.
// Only unit and Bloom confidence gate approval; marks and difficulty never do.
func Assess(r classify.Result, pageConfidence *float64, t Thresholds) []IssueType {
	var flags []IssueType
	raise := func(issue IssueType) {
		if !slices.Contains(flags, issue) {
			flags = append(flags, issue)
		}
	}

	if pageConfidence != nil && *pageConfidence < t.PageConfidence {
		raise(IssueExtractionError)
	}

	if margin, ok := r.Margin(); ok && margin < t.AmbiguityMargin {
		raise(IssueAmbiguousUnit)
	}

	if r.Incomplete ||
		r.UnitID == nil ||
		r.UnitConfidence == nil || *r.UnitConfidence < t.LowConfidence ||
		r.BloomLevel == nil ||
		r.BloomConfidence == nil || *r.BloomConfidence < t.LowConfidence {
		raise(IssueLowConfidence)
	}

	slices.SortStableFunc(flags, func(a, b IssueType) int {
		return b.Priority() - a.Priority()
	})
	return flags
}

// Corrections are admin overrides applied when approving an entry.
type Corrections struct {
	UnitID     *int64               `json:"unit_id,omitempty"`
	BloomLevel *int                 `json:"bloom_level,omitempty"`
	Marks      *int                 `json:"marks,omitempty"`
	Difficulty *classify.Difficulty `json:"difficulty,omitempty"`
}

// Empty reports whether no correction is set.
func (c Corrections) Empty() bool {
	return c.UnitID == nil && c.BloomLevel == nil && c.Marks == nil && c.Difficulty == nil
}

// Validate checks correction values that can be checked without the database.
func (c Corrections) Validate() error {
	if c.BloomLevel != nil && (*c.BloomLevel < 1 || *c.BloomLevel > 6) {
		return ErrInvalidCorrection
	}
	if c.Marks != nil && *c.Marks < 1 {
		return ErrInvalidCorrection
	}
	if c.Difficulty != nil && !c.Difficulty.Valid() {
		return ErrInvalidCorrection
	}
	return nil
}

// RejectCommand carries the admin's notes for a rejected entry.
type RejectCommand struct {
	Notes *string `json:"notes,omitempty"`
}

// CommitCommand is the per-question result handed to the router once a
// question has been classified and deduplicated.
type CommitCommand struct {
	QuestionID     int64
	PaperID        int64
	CourseCode     string
	PageConfidence *float64
	Result         classify.Result
	CanonicalID    *int64
	Similarity     *float64
}

// Routing reports what Commit did with a question.
type Routing struct {
	Flags    []IssueType `json:"flags"`
	Approved bool        `json:"approved"`
	Variant  bool        `json:"variant"`
	Queued   bool        `json:"queued"`
}
