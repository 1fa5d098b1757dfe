package units

import "context"

// System defines the public contract for course unit operations.
type System interface {
	Handler() *Handler

	ListByCourse(ctx context.Context, courseCode string) ([]Unit, error)
	Find(ctx context.Context, id int64) (*Unit, error)
	Upsert(ctx context.Context, cmd UpsertCommand) (*Unit, error)
}
