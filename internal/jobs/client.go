package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Enqueuer schedules tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Inspector manages scheduled and running tasks. *asynq.Inspector satisfies it.
type Inspector interface {
	CancelProcessing(id string) error
	DeleteTask(queue, id string) error
	Close() error
}

// Client dispatches and cancels paper processing attempts.
type Client struct {
	enqueuer  Enqueuer
	inspector Inspector
	opts      Options
	logger    *slog.Logger
}

// New creates a Client from an enqueuer and inspector.
func New(enqueuer Enqueuer, inspector Inspector, opts Options, logger *slog.Logger) *Client {
	return &Client{
		enqueuer:  enqueuer,
		inspector: inspector,
		opts:      opts,
		logger:    logger.With("system", "jobs"),
	}
}

// Connect creates a Client backed by Redis.
func Connect(redis asynq.RedisConnOpt, opts Options, logger *slog.Logger) *Client {
	return New(asynq.NewClient(redis), asynq.NewInspector(redis), opts, logger)
}

// Dispatch enqueues an attempt. An attempt that is already queued or
// running is coalesced and reported as success.
func (c *Client) Dispatch(ctx context.Context, paperID int64, attempt int) error {
	task, err := NewTask(paperID, attempt)
	if err != nil {
		return err
	}

	info, err := c.enqueuer.EnqueueContext(
		ctx, task,
		asynq.TaskID(TaskID(paperID, attempt)),
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			c.logger.Info("attempt already scheduled", "paper_id", paperID, "attempt", attempt)
			return nil
		}
		return fmt.Errorf("enqueue attempt: %w", err)
	}

	c.logger.Info("attempt dispatched", "paper_id", paperID, "attempt", attempt, "task_id", info.ID)
	return nil
}

// Cancel stops an attempt. A running task receives a cancellation signal;
// a pending one is removed from the queue. Attempts that are no longer
// known to the queue are ignored.
func (c *Client) Cancel(_ context.Context, paperID int64, attempt int) error {
	id := TaskID(paperID, attempt)

	if err := c.inspector.CancelProcessing(id); err != nil {
		return fmt.Errorf("cancel attempt: %w", err)
	}

	err := c.inspector.DeleteTask(c.opts.Queue, id)
	switch {
	case err == nil:
		c.logger.Info("attempt removed from queue", "paper_id", paperID, "attempt", attempt)
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
	default:
		// Active tasks cannot be deleted; the cancellation signal covers them.
		c.logger.Debug("attempt not deleted", "paper_id", paperID, "attempt", attempt, "error", err)
	}
	return nil
}

// Close releases the Redis connections.
func (c *Client) Close() error {
	return errors.Join(c.enqueuer.Close(), c.inspector.Close())
}
