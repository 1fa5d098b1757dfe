// Package classify maps a question to a syllabus unit, a Bloom's taxonomy
// level, marks, and difficulty.
//
// The reasoning collaborator is reached through the Classifier interface and
// its response is treated as untrusted: every field is optional, malformed
// fields become unknown, and partial results are kept. The Engine wraps a
// Classifier with per-call timeouts and bounded retries, sanitizes results
// against the candidate units, and fills gaps with local heuristics.
package classify

import (
	"context"
	"errors"
	"slices"

	"github.com/JaimeStill/qbank/internal/units"
)

var (
	// ErrClassificationTimeout is returned when a classifier call exceeds its deadline.
	ErrClassificationTimeout = errors.New("classification timed out")
	// ErrClassificationMalformed is returned when a classifier response is not a JSON object.
	ErrClassificationMalformed = errors.New("classification response malformed")
)

// Difficulty is the estimated difficulty of a question.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d == Easy || d == Medium || d == Hard
}

// Request is one question to classify against the units of its course.
type Request struct {
	Text        string
	Units       []units.Unit
	HasSubparts bool
}

// Alternative is a runner-up unit reported by the classifier.
type Alternative struct {
	UnitID     int64   `json:"unit_id"`
	Confidence float64 `json:"confidence"`
}

// Result is a classification outcome. Nil fields are unknown.
type Result struct {
	UnitID          *int64        `json:"unit_id"`
	UnitConfidence  *float64      `json:"unit_confidence"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
	BloomLevel      *int          `json:"bloom_level"`
	BloomConfidence *float64      `json:"bloom_confidence"`
	Marks           *int          `json:"marks"`
	Difficulty      Difficulty    `json:"difficulty,omitempty"`
	TopicTags       []string      `json:"topic_tags"`
	HasMath         bool          `json:"has_math"`

	// Incomplete is set when the classifier could not be reached within the
	// retry budget. Any populated fields come from local heuristics.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Margin returns the confidence gap between the two best unit candidates.
// ok is false when fewer than two distinct candidates are known.
func (r Result) Margin() (margin float64, ok bool) {
	seen := make(map[int64]float64)
	if r.UnitID != nil && r.UnitConfidence != nil {
		seen[*r.UnitID] = *r.UnitConfidence
	}
	for _, a := range r.Alternatives {
		if c, exists := seen[a.UnitID]; !exists || a.Confidence > c {
			seen[a.UnitID] = a.Confidence
		}
	}
	if len(seen) < 2 {
		return 0, false
	}

	scores := make([]float64, 0, len(seen))
	for _, c := range seen {
		scores = append(scores, c)
	}
	slices.Sort(scores)
	slices.Reverse(scores)
	return scores[0] - scores[1], true
}

// Classifier is the reasoning collaborator.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Result, error)
}
