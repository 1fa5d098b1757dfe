package questions

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/qbank/internal/segment"
	"github.com/JaimeStill/qbank/pkg/pagination"
	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a question repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "questions"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Question], error) {
	page.Normalize(r.pagination)

	canonical := Canonical
	reviewed := true

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("Designation", &canonical).
		WhereEquals("Reviewed", &reviewed).
		WhereSearch(page.Search, "Text", "Number")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	list, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanQuestion)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}

	result := pagination.NewPageResult(list, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id int64) (*Question, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	question, err := repository.QueryOne(ctx, r.db, q, args, scanQuestion)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &question, nil
}

func (r *repo) Detail(ctx context.Context, id int64) (*Detail, error) {
	question, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + columns + `
		FROM questions
		WHERE canonical_id = $1
		ORDER BY created_at, id`

	variants, err := repository.QueryMany(ctx, r.db, q, []any{id}, scanQuestion)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}

	return &Detail{Question: *question, Variants: variants}, nil
}

func (r *repo) CreateSegmented(
	ctx context.Context,
	paperID int64,
	courseCode string,
	candidates []segment.Candidate,
) (int, error) {
	count, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int, error) {
		var existing int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM questions WHERE paper_id = $1", paperID,
		).Scan(&existing); err != nil {
			return 0, err
		}
		if existing > 0 {
			return existing, nil
		}

		insert := `
			INSERT INTO questions(
				paper_id, course_code, number, parent_number, parent_id, sequence,
				text, page_number, page_confidence, has_subparts
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`

		ids := make([]int64, len(candidates))
		for i, c := range candidates {
			var parentID *int64
			if c.ParentIndex >= 0 && c.ParentIndex < i {
				parentID = &ids[c.ParentIndex]
			}

			var parentNumber *string
			if c.ParentLabel != "" {
				parentNumber = &c.ParentLabel
			}

			if err := tx.QueryRowContext(ctx, insert,
				paperID, courseCode, c.Label, parentNumber, parentID, i+1,
				c.Text, c.Page, c.PageConfidence, c.HasSubparts,
			).Scan(&ids[i]); err != nil {
				return 0, fmt.Errorf("insert question %s: %w", c.Label, err)
			}
		}
		return len(ids), nil
	})
	if err != nil {
		return 0, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("questions segmented", "paper_id", paperID, "count", count)
	return count, nil
}

func (r *repo) Unfinished(ctx context.Context, paperID int64) ([]Question, error) {
	q := `SELECT ` + columns + `
		FROM questions
		WHERE paper_id = $1 AND state <> 'processed'
		ORDER BY sequence`

	list, err := repository.QueryMany(ctx, r.db, q, []any{paperID}, scanQuestion)
	if err != nil {
		return nil, fmt.Errorf("query unfinished questions: %w", err)
	}
	return list, nil
}

func (r *repo) Canonicals(ctx context.Context, courseCode string, unitIDs []int64) ([]Question, error) {
	var (
		b    strings.Builder
		args = []any{courseCode}
	)

	b.WriteString(`SELECT ` + columns + `
		FROM questions
		WHERE course_code = $1 AND designation = 'canonical'`)

	if unitIDs != nil {
		b.WriteString(" AND unit_id = ANY($2)")
		args = append(args, unitIDs)
	}
	b.WriteString(" ORDER BY created_at, id")

	list, err := repository.QueryMany(ctx, r.db, b.String(), args, scanQuestion)
	if err != nil {
		return nil, fmt.Errorf("query canonicals: %w", err)
	}
	return list, nil
}

func (r *repo) MarkError(ctx context.Context, id int64, reason string) error {
	q := `
		UPDATE questions
		SET state = 'error', error = $2, updated_at = NOW()
		WHERE id = $1 AND state <> 'processed'`

	if err := repository.ExecExpectOne(ctx, r.db, q, id, reason); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}
