package review

import (
	"context"

	"github.com/JaimeStill/qbank/pkg/pagination"
)

// System defines the public contract for the review router and queue.
type System interface {
	Handler() *Handler

	// Commit writes a processed question and routes it. For a variant it
	// returns dedup.ErrDuplicateRace when the chosen canonical is no longer
	// canonical.
	Commit(ctx context.Context, cmd CommitCommand) (*Routing, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Entry], error)

	Find(ctx context.Context, id int64) (*Entry, error)
	Approve(ctx context.Context, id int64, corrections Corrections) (*Entry, error)
	Reject(ctx context.Context, id int64, cmd RejectCommand) (*Entry, error)
}
