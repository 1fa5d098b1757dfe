// Package pipeline runs the processing of one paper attempt: normalization,
// segmentation, then per-question classification, deduplication, and review
// routing. Every stage is resumable; a retried attempt skips what earlier
// attempts already persisted.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/qbank/internal/classify"
	"github.com/JaimeStill/qbank/internal/dedup"
	"github.com/JaimeStill/qbank/internal/normalize"
	"github.com/JaimeStill/qbank/internal/papers"
	"github.com/JaimeStill/qbank/internal/questions"
	"github.com/JaimeStill/qbank/internal/review"
	"github.com/JaimeStill/qbank/internal/segment"
	"github.com/JaimeStill/qbank/internal/units"
)

// Normalizer converts an uploaded file into page text.
type Normalizer interface {
	Normalize(ctx context.Context, src normalize.Source) (*normalize.Document, error)
}

// Classifier classifies a question against the candidate units.
type Classifier interface {
	Classify(ctx context.Context, req classify.Request) (classify.Result, error)
}

// Units lists the syllabus of a course.
type Units interface {
	ListByCourse(ctx context.Context, courseCode string) ([]units.Unit, error)
}

// Questions is the question store as seen by the pipeline.
type Questions interface {
	CreateSegmented(ctx context.Context, paperID int64, courseCode string, candidates []segment.Candidate) (int, error)
	Unfinished(ctx context.Context, paperID int64) ([]questions.Question, error)
	Canonicals(ctx context.Context, courseCode string, unitIDs []int64) ([]questions.Question, error)
	MarkError(ctx context.Context, id int64, reason string) error
}

// Router commits a classified question and routes it to review.
type Router interface {
	Commit(ctx context.Context, cmd review.CommitCommand) (*review.Routing, error)
}

// Config tunes the orchestrator.
type Config struct {
	Workers            int
	DuplicateThreshold float64
	Lease              time.Duration
}

// Runtime bundles the collaborators an attempt requires.
// It is constructed by higher-level composition code from Infrastructure and Domain systems.
type Runtime struct {
	Papers     papers.Tracker
	Normalizer Normalizer
	Classifier Classifier
	Units      Units
	Questions  Questions
	Router     Router
	Locks      *dedup.Locks
	Logger     *slog.Logger
}
