package prompts

import (
	"context"

	"github.com/JaimeStill/qbank/pkg/pagination"
)

// System defines the public contract for prompt domain operations.
type System interface {
	Handler() *Handler

	// List pages through stored overrides, active or not.
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Prompt], error)

	View(ctx context.Context, stage Stage) (*StageView, error)
	Override(ctx context.Context, stage Stage, cmd OverrideCommand) (*StageView, error)
	// Reset returns stage to its built-in default instructions.
	Reset(ctx context.Context, stage Stage) (*StageView, error)

	// Instructions returns the active override for stage, or the built-in default.
	Instructions(ctx context.Context, stage Stage) (string, error)
}
