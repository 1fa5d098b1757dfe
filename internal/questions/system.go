package questions

import (
	"context"

	"github.com/JaimeStill/qbank/internal/segment"
	"github.com/JaimeStill/qbank/pkg/pagination"
)

// System defines the public contract for question operations.
type System interface {
	Handler() *Handler

	// List returns reviewed canonical questions.
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Question], error)

	Find(ctx context.Context, id int64) (*Question, error)
	Detail(ctx context.Context, id int64) (*Detail, error)

	// CreateSegmented stores the candidates of a paper as pending questions.
	// It is a no-op returning the existing count when the paper already has
	// questions, so a retried attempt keeps its earlier records.
	CreateSegmented(ctx context.Context, paperID int64, courseCode string, candidates []segment.Candidate) (int, error)

	// Unfinished returns the paper's questions that are pending or errored,
	// in sequence order.
	Unfinished(ctx context.Context, paperID int64) ([]Question, error)

	// Canonicals returns the canonical questions of a course whose unit is in
	// unitIDs, oldest first. A nil unitIDs returns every canonical of the course.
	Canonicals(ctx context.Context, courseCode string, unitIDs []int64) ([]Question, error)

	MarkError(ctx context.Context, id int64, reason string) error
}
