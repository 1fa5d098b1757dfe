package units

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a unit repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "units"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) ListByCourse(ctx context.Context, courseCode string) ([]Unit, error) {
	code := strings.ToUpper(strings.TrimSpace(courseCode))
	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("CourseCode", &code).
		Build()

	list, err := repository.QueryMany(ctx, r.db, q, args, scanUnit)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	return list, nil
}

func (r *repo) Find(ctx context.Context, id int64) (*Unit, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	u, err := repository.QueryOne(ctx, r.db, q, args, scanUnit)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &u, nil
}

func (r *repo) Upsert(ctx context.Context, cmd UpsertCommand) (*Unit, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	topics, err := json.Marshal(cmd.Topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}

	q := `
		INSERT INTO course_units(course_code, unit_number, name, topics)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_code, unit_number) DO UPDATE SET
			name = EXCLUDED.name,
			topics = EXCLUDED.topics,
			updated_at = NOW()
		RETURNING id, course_code, unit_number, name, topics, created_at, updated_at`

	args := []any{cmd.CourseCode, cmd.UnitNumber, cmd.Name, topics}

	u, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Unit, error) {
		return repository.QueryOne(ctx, tx, q, args, scanUnit)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("unit upserted", "id", u.ID, "course_code", u.CourseCode, "unit_number", u.UnitNumber)
	return &u, nil
}
