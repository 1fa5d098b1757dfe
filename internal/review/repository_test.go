//go:build integration

package review_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/qbank/internal/classify"
	"github.com/JaimeStill/qbank/internal/dbtest"
	"github.com/JaimeStill/qbank/internal/dedup"
	"github.com/JaimeStill/qbank/internal/review"
	"github.com/JaimeStill/qbank/pkg/pagination"
)

type fixture struct {
	db      *sql.DB
	repo    review.System
	paperID int64
	seq     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	dbtest.Exec(t, db, `
		INSERT INTO course_units(course_code, unit_number, name)
		VALUES ('CS301', 1, 'Memory'), ('CS301', 2, 'Deadlocks'), ('CS302', 1, 'Graphs')`)

	paperID := dbtest.Int(t, db, `
		INSERT INTO papers(course_code, exam_type, exam_date, filename, content_type, storage_key, file_size, status, attempt)
		VALUES ('CS301', 'SEE', '2024-06-01', 'exam.pdf', 'application/pdf', 'papers/1/exam.pdf', 128, 'PROCESSING', 1)
		RETURNING id`)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		db:      db,
		repo:    review.New(db, thresholds, logger, pagination.Config{}),
		paperID: paperID,
	}
}

func (f *fixture) question(t *testing.T, text string) int64 {
	t.Helper()
	f.seq++
	return dbtest.Int(t, f.db, `
		INSERT INTO questions(paper_id, course_code, number, sequence, text)
		VALUES ($1, 'CS301', $2, $2, $3)
		RETURNING id`, f.paperID, f.seq, text)
}

func (f *fixture) commit(t *testing.T, id int64, result classify.Result, canonicalID *int64, pageConfidence *float64) *review.Routing {
	t.Helper()
	routing, err := f.repo.Commit(context.Background(), review.CommitCommand{
		QuestionID:     id,
		PaperID:        f.paperID,
		CourseCode:     "CS301",
		PageConfidence: pageConfidence,
		Result:         result,
		CanonicalID:    canonicalID,
	})
	if err != nil {
		t.Fatalf("Commit(%d): %v", id, err)
	}
	return routing
}

func (f *fixture) pendingEntry(t *testing.T, questionID int64) int64 {
	t.Helper()
	return dbtest.Int(t, f.db, "SELECT id FROM review_queue WHERE question_id = $1 AND status = 'PENDING'", questionID)
}

func (f *fixture) inReview(t *testing.T) int64 {
	t.Helper()
	return dbtest.Int(t, f.db, "SELECT in_review FROM papers WHERE id = $1", f.paperID)
}

func (f *fixture) int(t *testing.T, q string, args ...any) int64 {
	t.Helper()
	return dbtest.Int(t, f.db, q, args...)
}

func uncertain() classify.Result {
	return classify.Result{
		UnitID:          ptr(int64(1)),
		UnitConfidence:  ptr(0.4),
		BloomLevel:      ptr(2),
		BloomConfidence: ptr(0.9),
	}
}

func TestRepoCommit(t *testing.T) {
	t.Run("confident question is approved", func(t *testing.T) {
		f := newFixture(t)
		q := f.question(t, "Explain paging.")

		routing := f.commit(t, q, confident(), nil, nil)
		if !routing.Approved || routing.Queued || routing.Variant {
			t.Errorf("routing = %+v, want approved canonical", routing)
		}
		if n := f.int(t, "SELECT COUNT(*) FROM review_queue"); n != 0 {
			t.Errorf("entries = %d, want 0", n)
		}
		if n := f.int(t, "SELECT COUNT(*) FROM questions WHERE id = $1 AND reviewed AND review_outcome = 'AUTO_APPROVED'", q); n != 1 {
			t.Error("question not auto approved")
		}
		if n := f.int(t, "SELECT total_extracted FROM papers WHERE id = $1", f.paperID); n != 1 {
			t.Errorf("total extracted = %d, want 1", n)
		}
	})

	t.Run("flagged question opens one entry", func(t *testing.T) {
		f := newFixture(t)
		q := f.question(t, "Explain paging.")

		routing := f.commit(t, q, uncertain(), nil, nil)
		if routing.Approved || !routing.Queued {
			t.Errorf("routing = %+v, want queued", routing)
		}

		_, err := f.repo.Commit(context.Background(), review.CommitCommand{
			QuestionID: q,
			PaperID:    f.paperID,
			CourseCode: "CS301",
			Result:     uncertain(),
		})
		if !errors.Is(err, review.ErrAlreadyCommitted) {
			t.Errorf("second commit err = %v, want ErrAlreadyCommitted", err)
		}

		if n := f.int(t, "SELECT COUNT(*) FROM review_queue WHERE question_id = $1 AND status = 'PENDING'", q); n != 1 {
			t.Errorf("pending entries = %d, want 1", n)
		}
		if n := f.inReview(t); n != 1 {
			t.Errorf("in review = %d, want 1", n)
		}
	})

	t.Run("variant of a vanished canonical races", func(t *testing.T) {
		f := newFixture(t)
		q := f.question(t, "Explain paging.")

		_, err := f.repo.Commit(context.Background(), review.CommitCommand{
			QuestionID:  q,
			PaperID:     f.paperID,
			CourseCode:  "CS301",
			Result:      confident(),
			CanonicalID: ptr(int64(9999)),
		})
		if !errors.Is(err, dedup.ErrDuplicateRace) {
			t.Errorf("err = %v, want ErrDuplicateRace", err)
		}
	})

	t.Run("variant defers to reviewed canonical", func(t *testing.T) {
		f := newFixture(t)
		canonical := f.question(t, "Explain paging.")
		f.commit(t, canonical, uncertain(), nil, nil)

		if _, err := f.repo.Approve(context.Background(), f.pendingEntry(t, canonical), review.Corrections{
			UnitID:     ptr(int64(2)),
			BloomLevel: ptr(3),
		}); err != nil {
			t.Fatalf("Approve: %v", err)
		}

		variant := f.question(t, "Explain paging in detail.")
		routing := f.commit(t, variant, uncertain(), &canonical, nil)
		if !routing.Approved || !routing.Variant {
			t.Errorf("routing = %+v, want approved variant", routing)
		}
		if u := f.int(t, "SELECT unit_id FROM questions WHERE id = $1", variant); u != 2 {
			t.Errorf("variant unit = %d, want 2", u)
		}
		if b := f.int(t, "SELECT bloom_level FROM questions WHERE id = $1", variant); b != 3 {
			t.Errorf("variant bloom = %d, want 3", b)
		}
		if n := f.int(t, "SELECT total_extracted FROM papers WHERE id = $1", f.paperID); n != 1 {
			t.Errorf("total extracted = %d, want 1", n)
		}
	})
}

func TestRepoApprove(t *testing.T) {
	t.Run("approving twice decrements once", func(t *testing.T) {
		f := newFixture(t)
		first := f.question(t, "Explain paging.")
		second := f.question(t, "Describe deadlock detection.")
		f.commit(t, first, uncertain(), nil, nil)
		f.commit(t, second, uncertain(), nil, nil)

		if n := f.inReview(t); n != 2 {
			t.Fatalf("in review = %d, want 2", n)
		}

		entry := f.pendingEntry(t, first)
		corrections := review.Corrections{UnitID: ptr(int64(2)), BloomLevel: ptr(4)}

		got, err := f.repo.Approve(context.Background(), entry, corrections)
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if got.Status != review.StatusCorrected || got.ResolvedAt == nil {
			t.Errorf("entry = %s resolved %v, want CORRECTED", got.Status, got.ResolvedAt)
		}

		again, err := f.repo.Approve(context.Background(), entry, corrections)
		if err != nil {
			t.Fatalf("second Approve: %v", err)
		}
		if again.Status != review.StatusCorrected {
			t.Errorf("status = %s, want CORRECTED", again.Status)
		}

		if n := f.inReview(t); n != 1 {
			t.Errorf("in review = %d, want 1", n)
		}
		if u := f.int(t, "SELECT unit_id FROM questions WHERE id = $1", first); u != 2 {
			t.Errorf("unit = %d, want 2", u)
		}
		if c := f.int(t, "SELECT (unit_confidence * 100)::bigint FROM questions WHERE id = $1", first); c != 100 {
			t.Errorf("unit confidence = %d%%, want 100%%", c)
		}
	})

	t.Run("plain approval keeps suggested values", func(t *testing.T) {
		f := newFixture(t)
		q := f.question(t, "Explain paging.")
		f.commit(t, q, uncertain(), nil, nil)

		got, err := f.repo.Approve(context.Background(), f.pendingEntry(t, q), review.Corrections{})
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if got.Status != review.StatusApproved {
			t.Errorf("status = %s, want APPROVED", got.Status)
		}
		if u := f.int(t, "SELECT unit_id FROM questions WHERE id = $1", q); u != 1 {
			t.Errorf("unit = %d, want 1", u)
		}
	})

	t.Run("unit from another course is rejected", func(t *testing.T) {
		f := newFixture(t)
		q := f.question(t, "Explain paging.")
		f.commit(t, q, uncertain(), nil, nil)

		other := f.int(t, "SELECT id FROM course_units WHERE course_code = 'CS302'")
		_, err := f.repo.Approve(context.Background(), f.pendingEntry(t, q), review.Corrections{UnitID: &other})
		if !errors.Is(err, review.ErrInvalidCorrection) {
			t.Errorf("err = %v, want ErrInvalidCorrection", err)
		}
		if n := f.inReview(t); n != 1 {
			t.Errorf("in review = %d, want 1", n)
		}
	})

	t.Run("variant of reviewed canonical keeps canonical values", func(t *testing.T) {
		f := newFixture(t)
		canonical := f.question(t, "Explain paging.")
		f.commit(t, canonical, confident(), nil, nil)

		variant := f.question(t, "Explain paging in detail.")
		routing := f.commit(t, variant, uncertain(), &canonical, ptr(0.3))
		if !routing.Queued || routing.Flags[0] != review.IssueExtractionError {
			t.Fatalf("routing = %+v, want queued extraction error", routing)
		}

		entry := f.pendingEntry(t, variant)
		for _, c := range []review.Corrections{
			{UnitID: ptr(int64(2))},
			{BloomLevel: ptr(5)},
		} {
			if _, err := f.repo.Approve(context.Background(), entry, c); !errors.Is(err, review.ErrInvalidCorrection) {
				t.Errorf("Approve(%+v) err = %v, want ErrInvalidCorrection", c, err)
			}
		}

		got, err := f.repo.Approve(context.Background(), entry, review.Corrections{Marks: ptr(5)})
		if err != nil {
			t.Fatalf("Approve marks: %v", err)
		}
		if got.Status != review.StatusCorrected {
			t.Errorf("status = %s, want CORRECTED", got.Status)
		}
		if u := f.int(t, "SELECT unit_id FROM questions WHERE id = $1", variant); u != 1 {
			t.Errorf("variant unit = %d, want canonical unit 1", u)
		}
	})

	t.Run("canonical review propagates to variants", func(t *testing.T) {
		f := newFixture(t)
		canonical := f.question(t, "Explain paging.")
		f.commit(t, canonical, uncertain(), nil, nil)

		variant := f.question(t, "Explain paging in detail.")
		f.commit(t, variant, uncertain(), &canonical, nil)

		if n := f.inReview(t); n != 2 {
			t.Fatalf("in review = %d, want 2", n)
		}
		variantEntry := f.pendingEntry(t, variant)

		if _, err := f.repo.Approve(context.Background(), f.pendingEntry(t, canonical), review.Corrections{
			UnitID:     ptr(int64(2)),
			BloomLevel: ptr(3),
		}); err != nil {
			t.Fatalf("Approve: %v", err)
		}

		if n := f.inReview(t); n != 0 {
			t.Errorf("in review = %d, want 0", n)
		}
		if u := f.int(t, "SELECT unit_id FROM questions WHERE id = $1", variant); u != 2 {
			t.Errorf("variant unit = %d, want 2", u)
		}
		if b := f.int(t, "SELECT bloom_level FROM questions WHERE id = $1", variant); b != 3 {
			t.Errorf("variant bloom = %d, want 3", b)
		}

		e, err := f.repo.Find(context.Background(), variantEntry)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if e.Status != review.StatusApproved {
			t.Errorf("variant entry = %s, want APPROVED", e.Status)
		}
	})
}

func TestRepoReject(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, "Explain paging.")
	f.commit(t, q, uncertain(), nil, nil)
	entry := f.pendingEntry(t, q)

	got, err := f.repo.Reject(context.Background(), entry, review.RejectCommand{Notes: ptr("wrong unit")})
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.Status != review.StatusPending || got.Rejections != 1 {
		t.Errorf("entry = %s rejections %d, want PENDING 1", got.Status, got.Rejections)
	}
	if got.Notes == nil || *got.Notes != "wrong unit" {
		t.Errorf("notes = %v", got.Notes)
	}
	if n := f.int(t, "SELECT COUNT(*) FROM questions WHERE id = $1 AND NOT reviewed AND review_outcome = 'NEEDS_CORRECTION'", q); n != 1 {
		t.Error("question not flagged for correction")
	}
	if n := f.inReview(t); n != 1 {
		t.Errorf("in review = %d, want 1", n)
	}

	if _, err := f.repo.Approve(context.Background(), entry, review.Corrections{UnitID: ptr(int64(2))}); err != nil {
		t.Fatalf("Approve after reject: %v", err)
	}
	if n := f.inReview(t); n != 0 {
		t.Errorf("in review = %d, want 0", n)
	}

	if _, err := f.repo.Reject(context.Background(), 9999, review.RejectCommand{}); !errors.Is(err, review.ErrNotFound) {
		t.Errorf("missing entry err = %v, want ErrNotFound", err)
	}
}
