package papers

import (
	"context"
	"io"
	"time"

	"github.com/JaimeStill/qbank/pkg/pagination"
)

// Dispatcher schedules and cancels background processing of a paper attempt.
type Dispatcher interface {
	Dispatch(ctx context.Context, paperID int64, attempt int) error
	Cancel(ctx context.Context, paperID int64, attempt int) error
}

// System defines the public contract for paper domain operations.
type System interface {
	Tracker

	Handler(maxUploadSize int64) *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Paper], error)

	Find(ctx context.Context, id int64) (*Paper, error)
	Status(ctx context.Context, id int64) (*StatusView, error)
	Events(ctx context.Context, id int64) ([]Event, error)
	Open(ctx context.Context, id int64) (io.ReadCloser, *Paper, error)

	Submit(ctx context.Context, cmd SubmitCommand) (*Paper, error)
	SupplyMetadata(ctx context.Context, id int64, md Metadata) (*Paper, error)
	Retry(ctx context.Context, id int64) (*Paper, error)
	Delete(ctx context.Context, id int64) error
}

// Tracker is the processing-side contract used while a paper attempt runs.
// Every mutation is fenced by the attempt number so a superseded run
// cannot overwrite the state of a newer one.
type Tracker interface {
	Find(ctx context.Context, id int64) (*Paper, error)
	Events(ctx context.Context, id int64) ([]Event, error)
	Open(ctx context.Context, id int64) (io.ReadCloser, *Paper, error)

	Claim(ctx context.Context, id int64, attempt int, lease time.Duration) (*Paper, error)
	Release(ctx context.Context, id int64, attempt int) error
	Record(ctx context.Context, id int64, attempt int, stage Stage, detail any) error
	Advance(ctx context.Context, id int64, attempt int, progress float64) error
	SetSourceInfo(ctx context.Context, id int64, attempt int, pageCount int, ocrConfidence *float64) error
	Complete(ctx context.Context, id int64, attempt int) (*Paper, error)
	Fail(ctx context.Context, id int64, attempt int, reason string) (*Paper, error)
}
