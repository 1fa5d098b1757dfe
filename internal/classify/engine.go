package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/JaimeStill/qbank/internal/units"
)

// Config bounds the calls an Engine makes to its Classifier.
type Config struct {
	Retries int
	Timeout time.Duration
	Backoff time.Duration
}

// Engine classifies questions with retries, sanitization, and fallbacks.
type Engine struct {
	classifier Classifier
	cfg        Config
	logger     *slog.Logger
}

// NewEngine wraps classifier with the retry policy in cfg.
func NewEngine(classifier Classifier, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Engine{
		classifier: classifier,
		cfg:        cfg,
		logger:     logger.With("system", "classify"),
	}
}

// Classify returns a sanitized result for req. Collaborator failures are
// retried up to the configured budget; when the budget is exhausted the
// result is marked Incomplete and returned without error. The only error
// returned is cancellation of ctx.
func (e *Engine) Classify(ctx context.Context, req Request) (Result, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.Retries; attempt++ {
		result, err := e.call(ctx, req)
		if err == nil {
			return e.finish(sanitize(result, req.Units), req), nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		lastErr = err
		e.logger.WarnContext(ctx, "classification attempt failed",
			"attempt", attempt,
			"retries", e.cfg.Retries,
			"error", err,
		)

		if attempt < e.cfg.Retries {
			if err := sleep(ctx, e.cfg.Backoff<<(attempt-1)); err != nil {
				return Result{}, err
			}
		}
	}

	e.logger.WarnContext(ctx, "classification incomplete", "error", lastErr)
	return e.finish(Result{Incomplete: true}, req), nil
}

func (e *Engine) call(ctx context.Context, req Request) (Result, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	result, err := e.classifier.Classify(ctx, req)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrClassificationTimeout) {
		err = fmt.Errorf("%w: %w", ErrClassificationTimeout, err)
	}
	return result, err
}

// finish fills the fields the classifier left unknown from local heuristics.
func (e *Engine) finish(r Result, req Request) Result {
	r.HasMath = HasMath(req.Text)

	if r.BloomLevel == nil {
		if level, ok := KeywordBloom(req.Text); ok {
			conf := keywordBloomConfidence
			r.BloomLevel = &level
			r.BloomConfidence = &conf
		}
	}

	if r.Marks == nil {
		if marks, ok := ExtractMarks(req.Text); ok {
			r.Marks = &marks
		}
	}

	if !r.Difficulty.Valid() {
		r.Difficulty = EstimateDifficulty(req.Text, r.Marks, r.BloomLevel, req.HasSubparts, r.HasMath)
	}

	if r.TopicTags == nil {
		r.TopicTags = []string{}
	}
	return r
}

// sanitize drops values that fall outside the candidate set or valid ranges.
func sanitize(r Result, candidates []units.Unit) Result {
	known := func(id int64) *units.Unit {
		idx := slices.IndexFunc(candidates, func(u units.Unit) bool { return u.ID == id })
		if idx < 0 {
			return nil
		}
		return &candidates[idx]
	}

	r.UnitConfidence = clampPtr(r.UnitConfidence)
	r.BloomConfidence = clampPtr(r.BloomConfidence)

	var unit *units.Unit
	if r.UnitID != nil {
		if unit = known(*r.UnitID); unit == nil {
			zero := 0.0
			r.UnitID = nil
			r.UnitConfidence = &zero
		}
	}

	alts := r.Alternatives[:0:0]
	for _, a := range r.Alternatives {
		if math.IsNaN(a.Confidence) || known(a.UnitID) == nil || (r.UnitID != nil && a.UnitID == *r.UnitID) {
			continue
		}
		a.Confidence = clamp(a.Confidence)
		alts = append(alts, a)
	}
	r.Alternatives = alts

	if r.BloomLevel != nil && (*r.BloomLevel < 1 || *r.BloomLevel > 6) {
		r.BloomLevel = nil
		r.BloomConfidence = nil
	}

	if r.Marks != nil && *r.Marks <= 0 {
		r.Marks = nil
	}

	tags := make([]string, 0, len(r.TopicTags))
	if unit != nil {
		for _, t := range r.TopicTags {
			if slices.Contains(unit.Topics, t) && !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
	}
	r.TopicTags = tags

	return r
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}

func clampPtr(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) {
		return nil
	}
	c := clamp(*v)
	return &c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
