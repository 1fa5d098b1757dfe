package dedup

import (
	"errors"
	"time"
)

// ErrDuplicateRace is returned when the canonical chosen for a variant
// stopped being canonical before the variant was committed. The decision
// must be recomputed.
var ErrDuplicateRace = errors.New("canonical changed during deduplication")

// Candidate is an existing canonical question.
type Candidate struct {
	ID        int64
	Text      string
	CreatedAt time.Time
}

// Decision is the outcome of comparing a question with the canonical set.
type Decision struct {
	// CanonicalID is the canonical the question repeats, nil for a new canonical.
	CanonicalID *int64
	// Score is the best similarity seen, nil when there were no candidates.
	Score *float64
}

// IsVariant reports whether the question repeats an existing canonical.
func (d Decision) IsVariant() bool {
	return d.CanonicalID != nil
}

// Decide compares text with every candidate. The question is a variant of
// the candidate with the strictly highest score when that score exceeds
// threshold; equal scores resolve to the earliest created candidate, then
// the lowest id.
func Decide(text string, candidates []Candidate, threshold float64) Decision {
	if len(candidates) == 0 {
		return Decision{}
	}

	v := Vectorize(text)

	var (
		best  *Candidate
		score = -1.0
	)
	for i := range candidates {
		c := &candidates[i]
		s := Cosine(v, Vectorize(c.Text))
		if s > score || (s == score && earlier(c, best)) {
			best, score = c, s
		}
	}

	d := Decision{Score: &score}
	if score > threshold {
		id := best.ID
		d.CanonicalID = &id
	}
	return d
}

func earlier(a, b *Candidate) bool {
	if b == nil {
		return true
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
