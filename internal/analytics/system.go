package analytics

import "context"

// System defines the public contract for dashboard aggregates.
type System interface {
	Handler() *Handler

	Dashboard(ctx context.Context, filters Filters) (*Dashboard, error)
}
