package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/qbank/internal/normalize"
	"github.com/JaimeStill/qbank/internal/papers"
	"github.com/JaimeStill/qbank/internal/segment"
)

// Progress checkpoints of an attempt.
const (
	progressNormalized = 10
	progressSegmented  = 30
	progressProcessed  = 90
)

// ErrMissingMetadata is returned when a claimed paper has no course code.
var ErrMissingMetadata = errors.New("paper has no course metadata")

// Orchestrator drives paper attempts through the pipeline.
type Orchestrator struct {
	rt     Runtime
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(rt Runtime, cfg Config) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Minute
	}
	return &Orchestrator{
		rt:     rt,
		cfg:    cfg,
		logger: rt.Logger.With("system", "pipeline"),
	}
}

// Run processes one attempt of a paper. A paper that cannot be claimed
// (superseded attempt, deleted paper, or a lease held elsewhere) is a no-op.
// Fatal document errors fail the paper and return nil; other errors are
// returned so the caller may redeliver the attempt.
func (o *Orchestrator) Run(ctx context.Context, paperID int64, attempt int) error {
	p, err := o.rt.Papers.Claim(ctx, paperID, attempt, o.cfg.Lease)
	if err != nil {
		if errors.Is(err, papers.ErrNotClaimable) {
			o.logger.Info("attempt not claimable", "paper_id", paperID, "attempt", attempt)
			return nil
		}
		return fmt.Errorf("claim paper %d: %w", paperID, err)
	}
	defer func() {
		if err := o.rt.Papers.Release(context.WithoutCancel(ctx), paperID, attempt); err != nil {
			o.logger.Warn("release lease failed", "paper_id", paperID, "error", err)
		}
	}()

	o.logger.Info("attempt started", "paper_id", paperID, "attempt", attempt)

	err = o.run(ctx, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, papers.ErrStaleAttempt):
		o.logger.Info("attempt superseded", "paper_id", paperID, "attempt", attempt)
		return nil
	case ctx.Err() != nil:
		o.logger.Info("attempt cancelled", "paper_id", paperID, "attempt", attempt)
		return ctx.Err()
	case fatal(err):
		return o.fail(ctx, p, err.Error())
	default:
		return err
	}
}

func (o *Orchestrator) run(ctx context.Context, p *papers.Paper) error {
	if p.CourseCode == nil || *p.CourseCode == "" {
		return ErrMissingMetadata
	}

	events, err := o.rt.Papers.Events(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	total, err := o.extract(ctx, p, events)
	if err != nil {
		return err
	}

	sum, err := o.process(ctx, p, total)
	if err != nil {
		return err
	}

	if sum.attempted > 0 && sum.incomplete == sum.attempted {
		return o.fail(ctx, p, "classification unavailable for every question")
	}
	if sum.errored > 0 {
		return o.fail(ctx, p, fmt.Sprintf("%d question(s) could not be processed", sum.errored))
	}

	done, err := o.rt.Papers.Complete(ctx, p.ID, p.Attempt)
	if err != nil {
		return fmt.Errorf("complete paper: %w", err)
	}

	o.logger.Info(
		"attempt completed",
		"paper_id", p.ID,
		"attempt", p.Attempt,
		"total_extracted", done.TotalExtracted,
		"in_review", done.InReview,
		"variants", sum.variants,
	)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, p *papers.Paper, reason string) error {
	_, err := o.rt.Papers.Fail(context.WithoutCancel(ctx), p.ID, p.Attempt, reason)
	if err != nil && !errors.Is(err, papers.ErrStaleAttempt) {
		return fmt.Errorf("fail paper: %w", err)
	}
	return nil
}

func fatal(err error) bool {
	return errors.Is(err, normalize.ErrUnsupportedFormat) ||
		errors.Is(err, normalize.ErrExtractionError) ||
		errors.Is(err, segment.ErrSegmentationFailure) ||
		errors.Is(err, ErrMissingMetadata)
}
