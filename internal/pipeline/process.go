package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/qbank/internal/classify"
	"github.com/JaimeStill/qbank/internal/dedup"
	"github.com/JaimeStill/qbank/internal/papers"
	"github.com/JaimeStill/qbank/internal/questions"
	"github.com/JaimeStill/qbank/internal/review"
	"github.com/JaimeStill/qbank/internal/units"
)

const reasonClassificationUnavailable = "classification unavailable"

type summary struct {
	attempted  int
	incomplete int
	errored    int
	variants   int
	queued     int
}

type classified struct {
	question questions.Question
	result   classify.Result
}

// process classifies every unfinished question in parallel, then
// deduplicates and commits them one at a time in sequence order.
// Cancellation is observed between questions; a question is either
// committed whole or left for the next attempt.
func (o *Orchestrator) process(ctx context.Context, p *papers.Paper, total int) (summary, error) {
	var sum summary

	pending, err := o.rt.Questions.Unfinished(ctx, p.ID)
	if err != nil {
		return sum, fmt.Errorf("load questions: %w", err)
	}
	if len(pending) == 0 {
		return sum, nil
	}

	syllabus, err := o.rt.Units.ListByCourse(ctx, *p.CourseCode)
	if err != nil {
		return sum, fmt.Errorf("load units: %w", err)
	}

	results, err := o.classifyAll(ctx, pending, syllabus)
	if err != nil {
		return sum, err
	}

	sum.attempted = len(results)
	for _, c := range results {
		if c.result.Incomplete {
			sum.incomplete++
		}
	}

	if sum.incomplete == sum.attempted {
		for _, c := range results {
			if err := o.rt.Questions.MarkError(ctx, c.question.ID, reasonClassificationUnavailable); err != nil {
				return sum, fmt.Errorf("mark question %d: %w", c.question.ID, err)
			}
		}
		return sum, nil
	}

	if total < len(pending) {
		total = len(pending)
	}

	// Commits run in paper order so that the earliest of two near-duplicates
	// on the same paper always becomes the canonical.
	slices.SortStableFunc(results, func(a, b classified) int {
		return cmp.Compare(a.question.Sequence, b.question.Sequence)
	})

	done := total - len(pending)
	for _, c := range results {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		routing, err := o.commit(ctx, p, c, syllabus)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			o.logger.Error("question failed", "question_id", c.question.ID, "error", err)
			if err := o.rt.Questions.MarkError(ctx, c.question.ID, err.Error()); err != nil {
				return sum, fmt.Errorf("mark question %d: %w", c.question.ID, err)
			}
			sum.errored++
			continue
		}

		done++
		if routing != nil && routing.Variant {
			sum.variants++
		}
		if routing != nil && routing.Queued {
			sum.queued++
		}

		progress := progressSegmented + float64(progressProcessed-progressSegmented)*float64(done)/float64(total)
		if err := o.rt.Papers.Advance(ctx, p.ID, p.Attempt, progress); err != nil {
			return sum, err
		}
	}

	return sum, nil
}

func (o *Orchestrator) classifyAll(ctx context.Context, pending []questions.Question, syllabus []units.Unit) ([]classified, error) {
	results := make([]classified, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for i, q := range pending {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			res, err := o.rt.Classifier.Classify(gctx, classify.Request{
				Text:        q.Text,
				Units:       syllabus,
				HasSubparts: q.HasSubparts,
			})
			if err != nil {
				return fmt.Errorf("classify question %d: %w", q.ID, err)
			}

			results[i] = classified{question: q, result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// commit deduplicates c against the canonical set of its unit neighborhood
// and hands it to the router. A canonical that disappears between comparison
// and commit triggers one fresh comparison.
func (o *Orchestrator) commit(ctx context.Context, p *papers.Paper, c classified, syllabus []units.Unit) (*review.Routing, error) {
	for try := 0; ; try++ {
		routing, err := o.commitOnce(ctx, p, c, syllabus)
		switch {
		case err == nil:
			return routing, nil
		case errors.Is(err, review.ErrAlreadyCommitted):
			return nil, nil
		case errors.Is(err, dedup.ErrDuplicateRace) && try == 0:
			o.logger.Warn("canonical changed during commit", "question_id", c.question.ID)
			continue
		default:
			return nil, err
		}
	}
}

func (o *Orchestrator) commitOnce(ctx context.Context, p *papers.Paper, c classified, syllabus []units.Unit) (*review.Routing, error) {
	course := *p.CourseCode
	unitIDs, keys := scope(course, c.result.UnitID, syllabus)

	unlock := o.rt.Locks.Lock(keys...)
	defer unlock()

	canonicals, err := o.rt.Questions.Canonicals(ctx, course, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("load canonicals: %w", err)
	}

	candidates := make([]dedup.Candidate, 0, len(canonicals))
	for _, q := range canonicals {
		if q.ID == c.question.ID {
			continue
		}
		candidates = append(candidates, dedup.Candidate{ID: q.ID, Text: q.Text, CreatedAt: q.CreatedAt})
	}

	decision := dedup.Decide(c.question.Text, candidates, o.cfg.DuplicateThreshold)

	return o.rt.Router.Commit(ctx, review.CommitCommand{
		QuestionID:     c.question.ID,
		PaperID:        p.ID,
		CourseCode:     course,
		PageConfidence: c.question.PageConfidence,
		Result:         c.result,
		CanonicalID:    decision.CanonicalID,
		Similarity:     decision.Score,
	})
}

// scope returns the units a question is compared against and the lock keys
// guarding them. A question without a unit is compared against the whole
// course.
func scope(course string, unitID *int64, syllabus []units.Unit) ([]int64, []string) {
	if unitID != nil {
		ids := units.Neighborhood(syllabus, *unitID)
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = dedup.Key(course, &id)
		}
		return ids, keys
	}

	keys := make([]string, 0, len(syllabus)+1)
	keys = append(keys, dedup.Key(course, nil))
	for _, u := range syllabus {
		keys = append(keys, dedup.Key(course, &u.ID))
	}
	return nil, keys
}
