package papers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/qbank/internal/normalize"
	"github.com/JaimeStill/qbank/pkg/pagination"
	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
	"github.com/JaimeStill/qbank/pkg/storage"
)

type repo struct {
	db         *sql.DB
	storage    storage.System
	dispatcher Dispatcher
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a paper repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	dispatcher Dispatcher,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		dispatcher: dispatcher,
		logger:     logger.With("system", "papers"),
		pagination: pagination,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Paper], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "CourseCode")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count papers: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	list, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanPaper)
	if err != nil {
		return nil, fmt.Errorf("query papers: %w", err)
	}

	result := pagination.NewPageResult(list, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id int64) (*Paper, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	p, err := repository.QueryOne(ctx, r.db, q, args, scanPaper)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicatePaper)
	}
	return &p, nil
}

func (r *repo) Status(ctx context.Context, id int64) (*StatusView, error) {
	p, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	v := p.View()
	return &v, nil
}

func (r *repo) Events(ctx context.Context, id int64) ([]Event, error) {
	q := `
		SELECT id, paper_id, attempt, stage, detail, created_at
		FROM paper_events
		WHERE paper_id = $1
		ORDER BY id`

	events, err := repository.QueryMany(ctx, r.db, q, []any{id}, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("query paper events: %w", err)
	}
	return events, nil
}

func (r *repo) Open(ctx context.Context, id int64) (io.ReadCloser, *Paper, error) {
	p, err := r.Find(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := r.storage.Download(ctx, p.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("download paper blob: %w", err)
	}
	return rc, p, nil
}

func (r *repo) Submit(ctx context.Context, cmd SubmitCommand) (*Paper, error) {
	if len(cmd.Data) == 0 {
		return nil, ErrInvalidFile
	}
	if _, err := normalize.DetectFormat(cmd.Filename, cmd.Data); err != nil {
		return nil, err
	}

	var examDate time.Time
	if cmd.Metadata != nil {
		d, err := cmd.Metadata.Validate()
		if err != nil {
			return nil, err
		}
		examDate = d
	}

	key := buildStorageKey(uuid.New(), sanitizeFilename(cmd.Filename))
	if err := r.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload paper blob: %w", err)
	}

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Paper, error) {
		insert := `
			INSERT INTO papers(filename, content_type, storage_key, file_size, page_count, status)
			VALUES ($1, $2, $3, $4, $5, 'UPLOADED')
			RETURNING ` + columns

		p, err := repository.QueryOne(ctx, tx, insert, []any{
			cmd.Filename,
			cmd.ContentType,
			key,
			int64(len(cmd.Data)),
			cmd.PageCount,
		}, scanPaper)
		if err != nil {
			return p, err
		}

		if err := recordEvent(ctx, tx, p.ID, 0, StageAccepted, map[string]any{"filename": cmd.Filename}); err != nil {
			return p, err
		}

		pending := `
			UPDATE papers SET status = 'METADATA_PENDING', updated_at = NOW()
			WHERE id = $1 AND status = 'UPLOADED'
			RETURNING ` + columns

		p, err = repository.QueryOne(ctx, tx, pending, []any{p.ID}, scanPaper)
		if err != nil || cmd.Metadata == nil {
			return p, err
		}

		return r.applyMetadata(ctx, tx, p.ID, *cmd.Metadata, examDate)
	})

	if err != nil {
		if delErr := r.storage.Delete(ctx, key); delErr != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicatePaper)
	}

	r.logger.Info("paper accepted", "id", p.ID, "filename", p.Filename, "status", p.Status)

	if p.Status == StatusProcessing {
		return r.dispatch(ctx, &p)
	}
	return &p, nil
}

func (r *repo) SupplyMetadata(ctx context.Context, id int64, md Metadata) (*Paper, error) {
	examDate, err := md.Validate()
	if err != nil {
		return nil, err
	}

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Paper, error) {
		return r.applyMetadata(ctx, tx, id, md, examDate)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.transitionError(ctx, id, StatusProcessing)
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicatePaper)
	}

	r.logger.Info("paper metadata accepted", "id", p.ID, "course_code", md.CourseCode, "exam_type", md.ExamType)
	return r.dispatch(ctx, &p)
}

func (r *repo) Retry(ctx context.Context, id int64) (*Paper, error) {
	prev, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !prev.Status.CanTransition(StatusProcessing) || prev.Status == StatusMetadataPending {
		return nil, r.transitionError(ctx, id, StatusProcessing)
	}

	if err := r.dispatcher.Cancel(ctx, id, prev.Attempt); err != nil {
		r.logger.Warn("cancel previous attempt failed", "id", id, "attempt", prev.Attempt, "error", err)
	}

	q := `
		UPDATE papers SET
			status = 'PROCESSING',
			attempt = attempt + 1,
			error = NULL,
			lease_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'FAILED' AND attempt = $2
		RETURNING ` + columns

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Paper, error) {
		p, err := repository.QueryOne(ctx, tx, q, []any{id, prev.Attempt}, scanPaper)
		if err != nil {
			return p, err
		}
		return p, recordEvent(ctx, tx, p.ID, p.Attempt, StageRetried, map[string]any{"previous_attempt": prev.Attempt})
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.transitionError(ctx, id, StatusProcessing)
		}
		return nil, fmt.Errorf("retry paper: %w", err)
	}

	r.logger.Info("paper retry scheduled", "id", p.ID, "attempt", p.Attempt)
	return r.dispatch(ctx, &p)
}

func (r *repo) Delete(ctx context.Context, id int64) error {
	p, err := r.Find(ctx, id)
	if err != nil {
		return err
	}

	if p.Status == StatusProcessing {
		if err := r.dispatcher.Cancel(ctx, id, p.Attempt); err != nil {
			r.logger.Warn("cancel processing failed", "id", id, "attempt", p.Attempt, "error", err)
		}
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if err := promoteVariants(ctx, tx, id); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM papers WHERE id = $1", id)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicatePaper)
	}

	n, delErr := r.storage.DeletePrefix(ctx, p.BlobPrefix())
	if delErr != nil {
		r.logger.Warn("blob delete failed after DB delete", "prefix", p.BlobPrefix(), "error", delErr)
	}

	r.logger.Info("paper deleted", "id", id, "blobs", n)
	return nil
}

func (r *repo) Claim(ctx context.Context, id int64, attempt int, lease time.Duration) (*Paper, error) {
	q := `
		UPDATE papers SET
			lease_until = NOW() + ($3 * INTERVAL '1 second'),
			updated_at = NOW()
		WHERE id = $1
			AND attempt = $2
			AND status = 'PROCESSING'
			AND (lease_until IS NULL OR lease_until < NOW())
		RETURNING ` + columns

	p, err := repository.QueryOne(ctx, r.db, q, []any{id, attempt, lease.Seconds()}, scanPaper)
	if err != nil {
		return nil, repository.MapError(err, ErrNotClaimable, ErrDuplicatePaper)
	}
	return &p, nil
}

func (r *repo) Release(ctx context.Context, id int64, attempt int) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE papers SET lease_until = NULL WHERE id = $1 AND attempt = $2",
		id, attempt,
	)
	if err != nil {
		return fmt.Errorf("release paper lease: %w", err)
	}
	return nil
}

func (r *repo) Record(ctx context.Context, id int64, attempt int, stage Stage, detail any) error {
	if err := recordEvent(ctx, r.db, id, attempt, stage, detail); err != nil {
		return fmt.Errorf("record %s event: %w", stage, err)
	}
	return nil
}

func (r *repo) Advance(ctx context.Context, id int64, attempt int, progress float64) error {
	q := `
		UPDATE papers SET
			progress = GREATEST(progress, $3),
			updated_at = NOW()
		WHERE id = $1 AND attempt = $2 AND status = 'PROCESSING'`

	if err := repository.ExecExpectOne(ctx, r.db, q, id, attempt, min(progress, 100)); err != nil {
		return repository.MapError(err, ErrStaleAttempt, ErrDuplicatePaper)
	}
	return nil
}

func (r *repo) SetSourceInfo(ctx context.Context, id int64, attempt int, pageCount int, ocrConfidence *float64) error {
	q := `
		UPDATE papers SET
			page_count = $3,
			ocr_confidence = $4,
			updated_at = NOW()
		WHERE id = $1 AND attempt = $2 AND status = 'PROCESSING'`

	if err := repository.ExecExpectOne(ctx, r.db, q, id, attempt, pageCount, ocrConfidence); err != nil {
		return repository.MapError(err, ErrStaleAttempt, ErrDuplicatePaper)
	}
	return nil
}

func (r *repo) Complete(ctx context.Context, id int64, attempt int) (*Paper, error) {
	q := `
		UPDATE papers SET
			status = 'COMPLETED',
			progress = 100,
			lease_until = NULL,
			error = NULL,
			total_extracted = ` + canonicalCount + `,
			in_review = ` + pendingReviewCount + `,
			updated_at = NOW()
		WHERE id = $1 AND attempt = $2 AND status = 'PROCESSING'
		RETURNING ` + columns

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Paper, error) {
		p, err := repository.QueryOne(ctx, tx, q, []any{id, attempt}, scanPaper)
		if err != nil {
			return p, err
		}
		detail := map[string]any{
			"total_extracted": p.TotalExtracted,
			"in_review":       p.InReview,
		}
		return p, recordEvent(ctx, tx, id, attempt, StageFinalized, detail)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrStaleAttempt, ErrDuplicatePaper)
	}

	r.logger.Info(
		"paper completed",
		"id", p.ID,
		"attempt", p.Attempt,
		"total_extracted", p.TotalExtracted,
		"in_review", p.InReview,
	)
	return &p, nil
}

func (r *repo) Fail(ctx context.Context, id int64, attempt int, reason string) (*Paper, error) {
	q := `
		UPDATE papers SET
			status = 'FAILED',
			error = $3,
			lease_until = NULL,
			total_extracted = ` + canonicalCount + `,
			in_review = ` + pendingReviewCount + `,
			updated_at = NOW()
		WHERE id = $1 AND attempt = $2 AND status IN ('PROCESSING', 'METADATA_PENDING')
		RETURNING ` + columns

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Paper, error) {
		p, err := repository.QueryOne(ctx, tx, q, []any{id, attempt, reason}, scanPaper)
		if err != nil {
			return p, err
		}
		return p, recordEvent(ctx, tx, id, attempt, StageFailed, map[string]any{"reason": reason})
	})
	if err != nil {
		return nil, repository.MapError(err, ErrStaleAttempt, ErrDuplicatePaper)
	}

	r.logger.Warn("paper failed", "id", p.ID, "attempt", p.Attempt, "reason", reason)
	return &p, nil
}

const (
	canonicalCount = `(SELECT COUNT(*) FROM questions q
		WHERE q.paper_id = papers.id AND q.designation = 'canonical' AND q.state = 'processed')`

	pendingReviewCount = `(SELECT COUNT(*) FROM review_queue rq
		WHERE rq.paper_id = papers.id AND rq.status = 'PENDING')`

	// promoteHeirs reassigns variants in other papers whose canonical is about
	// to be deleted. The earliest variant of each group becomes canonical and
	// the rest point at it.
	promoteHeirs = `
		WITH doomed AS (
			SELECT id FROM questions
			WHERE paper_id = $1 AND designation = 'canonical'
		), heirs AS (
			SELECT DISTINCT ON (canonical_id) canonical_id, id
			FROM questions
			WHERE canonical_id IN (SELECT id FROM doomed) AND paper_id <> $1
			ORDER BY canonical_id, created_at, id
		)
		UPDATE questions q SET
			designation = CASE WHEN q.id = h.id THEN 'canonical' ELSE 'variant' END,
			canonical_id = CASE WHEN q.id = h.id THEN NULL ELSE h.id END,
			similarity_score = CASE WHEN q.id = h.id THEN NULL ELSE q.similarity_score END,
			updated_at = NOW()
		FROM heirs h
		WHERE q.canonical_id = h.canonical_id AND q.paper_id <> $1
		RETURNING q.paper_id, q.designation`
)

// applyMetadata moves a METADATA_PENDING paper to PROCESSING under a new attempt.
// The partial unique index on (course_code, exam_type, exam_date) rejects
// duplicates, which rolls the surrounding transaction back.
func (r *repo) applyMetadata(ctx context.Context, tx *sql.Tx, id int64, md Metadata, examDate time.Time) (Paper, error) {
	q := `
		UPDATE papers SET
			course_code = $2,
			exam_type = $3,
			exam_date = $4,
			academic_year = $5,
			semester_type = $6,
			status = 'PROCESSING',
			attempt = attempt + 1,
			error = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'METADATA_PENDING'
		RETURNING ` + columns

	args := []any{id, md.CourseCode, md.ExamType, examDate, md.AcademicYear, md.SemesterType}

	p, err := repository.QueryOne(ctx, tx, q, args, scanPaper)
	if err != nil {
		return p, err
	}

	return p, recordEvent(ctx, tx, p.ID, p.Attempt, StageMetadata, md)
}

// dispatch enqueues processing for p's current attempt. A paper whose job
// cannot be enqueued is failed so it can be retried explicitly.
func (r *repo) dispatch(ctx context.Context, p *Paper) (*Paper, error) {
	if err := r.dispatcher.Dispatch(ctx, p.ID, p.Attempt); err != nil {
		r.logger.Error("dispatch processing failed", "id", p.ID, "attempt", p.Attempt, "error", err)
		failed, ferr := r.Fail(ctx, p.ID, p.Attempt, fmt.Sprintf("enqueue processing: %v", err))
		if ferr != nil {
			return nil, fmt.Errorf("dispatch paper %d: %w", p.ID, err)
		}
		return failed, nil
	}
	return p, nil
}

func (r *repo) transitionError(ctx context.Context, id int64, next Status) error {
	p, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusProcessing {
		return ErrAlreadyProcessing
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, p.Status, next)
}

func promoteVariants(ctx context.Context, tx *sql.Tx, id int64) error {
	type promotion struct {
		paperID     int64
		designation string
	}

	rows, err := repository.QueryMany(ctx, tx, promoteHeirs, []any{id}, func(s repository.Scanner) (promotion, error) {
		var p promotion
		err := s.Scan(&p.paperID, &p.designation)
		return p, err
	})
	if err != nil {
		return fmt.Errorf("promote orphaned variants: %w", err)
	}

	for _, p := range rows {
		if p.designation != "canonical" {
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			"UPDATE papers SET total_extracted = total_extracted + 1 WHERE id = $1",
			p.paperID,
		); err != nil {
			return fmt.Errorf("update promoted paper counts: %w", err)
		}
	}
	return nil
}

func recordEvent(ctx context.Context, e repository.Executor, id int64, attempt int, stage Stage, detail any) error {
	var payload []byte
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal event detail: %w", err)
		}
		payload = b
	}

	_, err := e.ExecContext(
		ctx,
		"INSERT INTO paper_events(paper_id, attempt, stage, detail) VALUES ($1, $2, $3, $4)",
		id, attempt, stage, payload,
	)
	return err
}

func buildStorageKey(id uuid.UUID, filename string) string {
	return fmt.Sprintf("papers/%s/%s", id, filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "" || name == "/" {
		name = "paper"
	}
	return url.PathEscape(name)
}
