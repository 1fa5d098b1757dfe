package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/qbank/internal/classify"
	"github.com/JaimeStill/qbank/internal/dedup"
	"github.com/JaimeStill/qbank/pkg/pagination"
	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

type repo struct {
	db         *sql.DB
	thresholds Thresholds
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a review router implementing the System interface.
func New(
	db *sql.DB,
	thresholds Thresholds,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		thresholds: thresholds,
		logger:     logger.With("system", "review"),
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
) (*pagination.PageResult[Entry], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort...).
		WhereSearch(page.Search, "QuestionText", "QuestionNumber")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count review entries: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	list, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query review entries: %w", err)
	}

	result := pagination.NewPageResult(list, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id int64) (*Entry, error) {
	return r.find(ctx, r.db, id)
}

func (r *repo) find(ctx context.Context, db repository.Querier, id int64) (*Entry, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	e, err := repository.QueryOne(ctx, db, q, args, scanEntry)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}

type canonicalState struct {
	designation     sql.NullString
	reviewed        bool
	unitID          *int64
	unitConfidence  *float64
	bloomLevel      *int
	bloomConfidence *float64
}

func (r *repo) Commit(ctx context.Context, cmd CommitCommand) (*Routing, error) {
	routing, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*Routing, error) {
		result := cmd.Result
		designation := "canonical"

		if cmd.CanonicalID != nil {
			designation = "variant"

			var c canonicalState
			err := tx.QueryRowContext(ctx, `
				SELECT designation, reviewed, unit_id, unit_confidence, bloom_level, bloom_confidence
				FROM questions
				WHERE id = $1
				FOR SHARE`, *cmd.CanonicalID,
			).Scan(&c.designation, &c.reviewed, &c.unitID, &c.unitConfidence, &c.bloomLevel, &c.bloomConfidence)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && c.designation.String != "canonical") {
				return nil, dedup.ErrDuplicateRace
			}
			if err != nil {
				return nil, err
			}

			// a variant defers to its canonical's resolved unit and level
			if c.reviewed {
				result.UnitID = c.unitID
				result.UnitConfidence = c.unitConfidence
				result.Alternatives = nil
				result.BloomLevel = c.bloomLevel
				result.BloomConfidence = c.bloomConfidence
			}
		}

		flags := Assess(result, cmd.PageConfidence, r.thresholds)
		approved := len(flags) == 0

		var outcome *string
		if approved {
			o := OutcomeAutoApproved
			outcome = &o
		}

		tags, err := json.Marshal(result.TopicTags)
		if err != nil {
			return nil, fmt.Errorf("marshal topic tags: %w", err)
		}

		var difficulty *string
		if result.Difficulty.Valid() {
			d := string(result.Difficulty)
			difficulty = &d
		}

		err = repository.ExecExpectOne(ctx, tx, `
			UPDATE questions SET
				unit_id = $2,
				unit_confidence = $3,
				bloom_level = $4,
				bloom_confidence = $5,
				marks = $6,
				difficulty = $7,
				topic_tags = $8,
				has_math = $9,
				designation = $10,
				canonical_id = $11,
				similarity_score = $12,
				classification_incomplete = $13,
				reviewed = $14,
				review_outcome = $15,
				state = 'processed',
				error = NULL,
				updated_at = NOW()
			WHERE id = $1 AND state <> 'processed'`,
			cmd.QuestionID, result.UnitID, result.UnitConfidence, result.BloomLevel,
			result.BloomConfidence, result.Marks, difficulty, tags, result.HasMath,
			designation, cmd.CanonicalID, cmd.Similarity, result.Incomplete,
			approved, outcome,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrAlreadyCommitted
			}
			return nil, err
		}

		routing := &Routing{Flags: flags, Approved: approved, Variant: cmd.CanonicalID != nil}

		if !approved {
			queued, err := r.open(ctx, tx, cmd, result, flags)
			if err != nil {
				return nil, err
			}
			routing.Queued = queued
		}

		if !routing.Variant {
			if _, err := tx.ExecContext(ctx, `
				UPDATE papers
				SET total_extracted = total_extracted + 1, updated_at = NOW()
				WHERE id = $1`, cmd.PaperID,
			); err != nil {
				return nil, fmt.Errorf("count canonical: %w", err)
			}
		}

		return routing, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("question routed",
		"question_id", cmd.QuestionID,
		"paper_id", cmd.PaperID,
		"approved", routing.Approved,
		"variant", routing.Variant,
		"flags", routing.Flags,
	)
	return routing, nil
}

// open inserts the pending entry for a flagged question. At most one
// pending entry exists per question; the paper's in-review count only
// moves when a row was inserted.
func (r *repo) open(ctx context.Context, tx *sql.Tx, cmd CommitCommand, result classify.Result, flags []IssueType) (bool, error) {
	suggestion, err := json.Marshal(Suggestion{
		Flags:           flags,
		UnitID:          result.UnitID,
		UnitConfidence:  result.UnitConfidence,
		Alternatives:    result.Alternatives,
		BloomLevel:      result.BloomLevel,
		BloomConfidence: result.BloomConfidence,
		Marks:           result.Marks,
		Difficulty:      result.Difficulty,
		PageConfidence:  cmd.PageConfidence,
		Incomplete:      result.Incomplete,
		CanonicalID:     cmd.CanonicalID,
		SimilarityScore: cmd.Similarity,
	})
	if err != nil {
		return false, fmt.Errorf("marshal suggestion: %w", err)
	}

	issue := flags[0]
	inserted, err := repository.ExecAffected(ctx, tx, `
		INSERT INTO review_queue(question_id, paper_id, course_code, issue_type, priority, suggestion)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (question_id) WHERE status = 'PENDING' DO NOTHING`,
		cmd.QuestionID, cmd.PaperID, cmd.CourseCode, issue, issue.Priority(), suggestion,
	)
	if err != nil {
		return false, fmt.Errorf("open review entry: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE papers
		SET in_review = in_review + 1, updated_at = NOW()
		WHERE id = $1`, cmd.PaperID,
	); err != nil {
		return false, fmt.Errorf("count review entry: %w", err)
	}
	return true, nil
}

type lockedEntry struct {
	questionID int64
	paperID    int64
	courseCode string
	status     Status
}

func lockEntry(ctx context.Context, tx *sql.Tx, id int64) (*lockedEntry, error) {
	var e lockedEntry
	err := tx.QueryRowContext(ctx, `
		SELECT question_id, paper_id, course_code, status
		FROM review_queue
		WHERE id = $1
		FOR UPDATE`, id,
	).Scan(&e.questionID, &e.paperID, &e.courseCode, &e.status)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}

func (r *repo) Approve(ctx context.Context, id int64, corrections Corrections) (*Entry, error) {
	if err := corrections.Validate(); err != nil {
		return nil, err
	}

	status := StatusApproved
	if !corrections.Empty() {
		status = StatusCorrected
	}

	closed := false
	entry, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*Entry, error) {
		locked, err := lockEntry(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if locked.status != StatusPending {
			return r.find(ctx, tx, id)
		}

		if corrections.UnitID != nil || corrections.BloomLevel != nil {
			canonicalID, err := reviewedCanonical(ctx, tx, locked.questionID)
			if err != nil {
				return nil, err
			}
			if canonicalID != nil {
				return nil, fmt.Errorf(
					"%w: question %d takes its unit and level from reviewed canonical %d",
					ErrInvalidCorrection, locked.questionID, *canonicalID,
				)
			}
		}

		if corrections.UnitID != nil {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM course_units WHERE id = $1 AND course_code = $2)",
				*corrections.UnitID, locked.courseCode,
			).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("%w: unit %d is not part of %s", ErrInvalidCorrection, *corrections.UnitID, locked.courseCode)
			}
		}

		var (
			designation sql.NullString
			difficulty  *string
		)
		if corrections.Difficulty != nil {
			d := string(*corrections.Difficulty)
			difficulty = &d
		}

		// confirmed values carry full confidence from here on
		err = tx.QueryRowContext(ctx, `
			UPDATE questions SET
				unit_id = COALESCE($2, unit_id),
				bloom_level = COALESCE($3, bloom_level),
				marks = COALESCE($4, marks),
				difficulty = COALESCE($5, difficulty),
				unit_confidence = CASE WHEN COALESCE($2, unit_id) IS NULL THEN unit_confidence ELSE 1 END,
				bloom_confidence = CASE WHEN COALESCE($3, bloom_level) IS NULL THEN bloom_confidence ELSE 1 END,
				reviewed = TRUE,
				review_outcome = $6,
				updated_at = NOW()
			WHERE id = $1
			RETURNING designation`,
			locked.questionID, corrections.UnitID, corrections.BloomLevel,
			corrections.Marks, difficulty, string(status),
		).Scan(&designation)
		if err != nil {
			return nil, fmt.Errorf("apply corrections: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE review_queue
			SET status = $2, resolved_at = NOW()
			WHERE id = $1`, id, status,
		); err != nil {
			return nil, fmt.Errorf("close review entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE papers
			SET in_review = GREATEST(in_review - 1, 0), updated_at = NOW()
			WHERE id = $1`, locked.paperID,
		); err != nil {
			return nil, fmt.Errorf("release review count: %w", err)
		}

		if designation.String == "canonical" {
			if err := propagate(ctx, tx, locked.questionID); err != nil {
				return nil, err
			}
		}

		closed = true
		return r.find(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}

	if closed {
		r.logger.Info("review entry approved", "id", id, "question_id", entry.QuestionID, "status", entry.Status)
	}
	return entry, nil
}

// reviewedCanonical returns the canonical a variant defers to once that
// canonical has been reviewed, or nil.
func reviewedCanonical(ctx context.Context, tx *sql.Tx, questionID int64) (*int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT c.id
		FROM questions v
		JOIN questions c ON c.id = v.canonical_id
		WHERE v.id = $1 AND v.designation = 'variant' AND c.reviewed`, questionID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load canonical: %w", err)
	}
	return &id, nil
}

// propagate copies a reviewed canonical's unit and level onto its variants
// and closes the variants' classification entries, which the canonical's
// review has now answered.
func propagate(ctx context.Context, tx *sql.Tx, canonicalID int64) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE questions v SET
			unit_id = c.unit_id,
			unit_confidence = c.unit_confidence,
			bloom_level = c.bloom_level,
			bloom_confidence = c.bloom_confidence,
			updated_at = NOW()
		FROM questions c
		WHERE c.id = $1 AND v.canonical_id = c.id`, canonicalID,
	); err != nil {
		return fmt.Errorf("propagate to variants: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		WITH closed AS (
			UPDATE review_queue r
			SET status = 'APPROVED', resolved_at = NOW()
			FROM questions q
			WHERE r.question_id = q.id
				AND q.canonical_id = $1
				AND r.status = 'PENDING'
				AND r.issue_type <> 'EXTRACTION_ERROR'
			RETURNING r.paper_id, r.question_id
		), reviewed AS (
			UPDATE questions
			SET reviewed = TRUE, review_outcome = 'APPROVED', updated_at = NOW()
			WHERE id IN (SELECT question_id FROM closed)
		)
		UPDATE papers p
		SET in_review = GREATEST(p.in_review - c.n, 0), updated_at = NOW()
		FROM (SELECT paper_id, COUNT(*) AS n FROM closed GROUP BY paper_id) c
		WHERE p.id = c.paper_id`, canonicalID,
	); err != nil {
		return fmt.Errorf("close variant entries: %w", err)
	}
	return nil
}

func (r *repo) Reject(ctx context.Context, id int64, cmd RejectCommand) (*Entry, error) {
	entry, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*Entry, error) {
		locked, err := lockEntry(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if locked.status != StatusPending {
			return r.find(ctx, tx, id)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE review_queue
			SET rejections = rejections + 1, notes = COALESCE($2, notes)
			WHERE id = $1`, id, cmd.Notes,
		); err != nil {
			return nil, fmt.Errorf("reject review entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE questions
			SET reviewed = FALSE, review_outcome = $2, updated_at = NOW()
			WHERE id = $1`, locked.questionID, OutcomeNeedsCorrection,
		); err != nil {
			return nil, fmt.Errorf("flag question: %w", err)
		}

		return r.find(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("review entry rejected", "id", id, "question_id", entry.QuestionID, "rejections", entry.Rejections)
	return entry, nil
}
