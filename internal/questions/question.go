// Package questions stores the extracted questions of every paper.
//
// Questions form an arena addressed by id with two independent
// self-references: ParentID links a subpart to its numbered stem, and
// CanonicalID links a duplicate variant to the canonical question it
// repeats. Questions are created by segmentation in the pending state and
// become processed once classified, deduplicated, and routed.
package questions

import (
	"time"
)

// State tracks a question through per-question processing.
type State string

const (
	StatePending   State = "pending"
	StateProcessed State = "processed"
	StateError     State = "error"
)

// Designation records whether a question is the canonical record of its
// duplicate set or a variant of another question.
type Designation string

const (
	Canonical Designation = "canonical"
	Variant   Designation = "variant"
)

// Question is one extracted question or subpart.
type Question struct {
	ID                       int64        `json:"id"`
	PaperID                  int64        `json:"paper_id"`
	CourseCode               string       `json:"course_code"`
	UnitID                   *int64       `json:"unit_id"`
	Number                   string       `json:"number"`
	ParentNumber             *string      `json:"parent_number,omitempty"`
	ParentID                 *int64       `json:"parent_id,omitempty"`
	CanonicalID              *int64       `json:"canonical_id,omitempty"`
	Sequence                 int          `json:"sequence"`
	Text                     string       `json:"text"`
	PageNumber               *int         `json:"page_number,omitempty"`
	PageConfidence           *float64     `json:"page_confidence,omitempty"`
	Marks                    *int         `json:"marks"`
	BloomLevel               *int         `json:"bloom_level"`
	BloomConfidence          *float64     `json:"bloom_confidence"`
	UnitConfidence           *float64     `json:"unit_confidence"`
	Difficulty               *string      `json:"difficulty"`
	TopicTags                []string     `json:"topic_tags"`
	HasSubparts              bool         `json:"has_subparts"`
	HasMath                  bool         `json:"has_math"`
	Designation              *Designation `json:"designation"`
	SimilarityScore          *float64     `json:"similarity_score,omitempty"`
	State                    State        `json:"state"`
	ClassificationIncomplete bool         `json:"classification_incomplete"`
	Reviewed                 bool         `json:"reviewed"`
	ReviewOutcome            *string      `json:"review_outcome,omitempty"`
	Error                    *string      `json:"error,omitempty"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
}

// IsCanonical reports whether q is the canonical record of its duplicate set.
func (q Question) IsCanonical() bool {
	return q.Designation != nil && *q.Designation == Canonical
}

// Detail is a question with the variants that repeat it.
type Detail struct {
	Question
	Variants []Question `json:"variants"`
}
