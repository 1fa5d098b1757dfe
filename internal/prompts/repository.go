package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/JaimeStill/qbank/pkg/pagination"
	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a prompt repository implementing the System interface.
func New(
	db *sql.DB,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "prompts"),
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
) (*pagination.PageResult[Prompt], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Name", "Description")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count prompts: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	prompts, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanPrompt)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}

	result := pagination.NewPageResult(prompts, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) View(ctx context.Context, stage Stage) (*StageView, error) {
	if !slices.Contains(stages, stage) {
		return nil, ErrInvalidStage
	}

	override, err := active(ctx, r.db, stage)
	if err != nil {
		return nil, err
	}
	return view(stage, override)
}

func (r *repo) Override(ctx context.Context, stage Stage, cmd OverrideCommand) (*StageView, error) {
	if !slices.Contains(stages, stage) {
		return nil, ErrInvalidStage
	}
	if strings.TrimSpace(cmd.Name) == "" || strings.TrimSpace(cmd.Instructions) == "" {
		return nil, ErrInvalid
	}

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Prompt, error) {
		if _, err := tx.ExecContext(ctx,
			"UPDATE prompts SET active = false WHERE stage = $1 AND active",
			stage,
		); err != nil {
			return Prompt{}, fmt.Errorf("deactivate current: %w", err)
		}

		q := `
			INSERT INTO prompts(name, stage, instructions, description, active)
			VALUES ($1, $2, $3, $4, true)
			RETURNING id, name, stage, instructions, description, active`

		args := []any{strings.TrimSpace(cmd.Name), stage, cmd.Instructions, cmd.Description}
		return repository.QueryOne(ctx, tx, q, args, scanPrompt)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("prompt override applied", "id", p.ID, "name", p.Name, "stage", p.Stage)
	return view(stage, &p)
}

func (r *repo) Reset(ctx context.Context, stage Stage) (*StageView, error) {
	if !slices.Contains(stages, stage) {
		return nil, ErrInvalidStage
	}

	n, err := repository.ExecAffected(ctx, r.db,
		"UPDATE prompts SET active = false WHERE stage = $1 AND active",
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("reset prompt: %w", err)
	}

	if n > 0 {
		r.logger.Info("prompt override cleared", "stage", stage)
	}
	return view(stage, nil)
}

func (r *repo) Instructions(ctx context.Context, stage Stage) (string, error) {
	if !slices.Contains(stages, stage) {
		return "", ErrInvalidStage
	}

	p, err := active(ctx, r.db, stage)
	if err != nil {
		return "", err
	}
	if p == nil {
		return Instructions(stage)
	}
	return p.Instructions, nil
}

func active(ctx context.Context, db repository.Querier, stage Stage) (*Prompt, error) {
	on := true
	q, args := query.
		NewBuilder(projection).
		WhereEquals("Stage", &stage).
		WhereEquals("Active", &on).
		Build()

	p, err := repository.QueryOne(ctx, db, q, args, scanPrompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query active prompt: %w", err)
	}
	return &p, nil
}

func view(stage Stage, override *Prompt) (*StageView, error) {
	spec, err := Spec(stage)
	if err != nil {
		return nil, err
	}

	v := &StageView{Stage: stage, Spec: spec, Override: override}
	if override != nil {
		v.Instructions = override.Instructions
		return v, nil
	}

	v.Instructions, err = Instructions(stage)
	if err != nil {
		return nil, err
	}
	return v, nil
}
