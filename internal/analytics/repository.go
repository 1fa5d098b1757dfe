package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/qbank/internal/classify"
	"github.com/JaimeStill/qbank/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates an analytics repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "analytics"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

type bloomCount struct {
	level *int
	count int
}

// Questions are counted once per duplicate set: only canonical records.
func (r *repo) Dashboard(ctx context.Context, filters Filters) (*Dashboard, error) {
	var course any
	if filters.CourseCode != nil {
		course = *filters.CourseCode
	}

	d := &Dashboard{BloomDistribution: map[string]int{}}

	totals := `
		SELECT
			(SELECT COUNT(*) FROM papers WHERE $1::text IS NULL OR course_code = $1),
			(SELECT COUNT(*) FROM questions
				WHERE designation = 'canonical' AND ($1::text IS NULL OR course_code = $1)),
			(SELECT COUNT(*) FROM review_queue
				WHERE status = 'PENDING' AND ($1::text IS NULL OR course_code = $1))`

	err := r.db.QueryRowContext(ctx, totals, course).Scan(&d.TotalPapers, &d.TotalQuestions, &d.PendingReview)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}

	bloom := `
		SELECT bloom_level, COUNT(*) FROM questions
		WHERE designation = 'canonical' AND ($1::text IS NULL OR course_code = $1)
		GROUP BY bloom_level`

	counts, err := repository.QueryMany(ctx, r.db, bloom, []any{course}, func(s repository.Scanner) (bloomCount, error) {
		var b bloomCount
		err := s.Scan(&b.level, &b.count)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("query bloom distribution: %w", err)
	}
	for _, b := range counts {
		name := unclassified
		if b.level != nil {
			name = classify.BloomName(*b.level)
		}
		d.BloomDistribution[name] += b.count
	}

	courses := `
		SELECT p.course_code,
			COUNT(*),
			COALESCE(SUM(p.total_extracted), 0),
			COALESCE(SUM(p.in_review), 0)
		FROM papers p
		WHERE p.course_code IS NOT NULL AND ($1::text IS NULL OR p.course_code = $1)
		GROUP BY p.course_code
		ORDER BY p.course_code`

	d.Courses, err = repository.QueryMany(ctx, r.db, courses, []any{course}, func(s repository.Scanner) (CourseCount, error) {
		var c CourseCount
		err := s.Scan(&c.CourseCode, &c.Papers, &c.Questions, &c.InReview)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("query course breakdown: %w", err)
	}

	return d, nil
}
