package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"

	"github.com/JaimeStill/qbank/internal/papers"
	"github.com/JaimeStill/qbank/pkg/lifecycle"
)

// Runner processes one attempt of a paper.
type Runner interface {
	Run(ctx context.Context, paperID int64, attempt int) error
}

// Failer marks an attempt as failed.
type Failer interface {
	Fail(ctx context.Context, id int64, attempt int, reason string) (*papers.Paper, error)
}

// Worker consumes processing tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
	ready  atomic.Bool
}

// NewWorker creates a Worker that runs attempts with runner. Attempts whose
// retries are exhausted are failed through failer.
func NewWorker(redis asynq.RedisConnOpt, opts Options, runner Runner, failer Failer, logger *slog.Logger) *Worker {
	logger = logger.With("system", "worker")

	server := asynq.NewServer(redis, asynq.Config{
		Concurrency:  opts.Concurrency,
		Queues:       map[string]int{opts.Queue: 1},
		ErrorHandler: ErrorHandler(failer, logger),
		Logger:       &asynqLogger{logger: logger},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeProcessPaper, NewHandler(runner, logger))

	return &Worker{
		server: server,
		mux:    mux,
		logger: logger,
	}
}

// Ready reports whether the worker is consuming tasks.
func (w *Worker) Ready() bool {
	return w.ready.Load()
}

// Start registers startup and shutdown hooks with the lifecycle coordinator.
func (w *Worker) Start(lc *lifecycle.Coordinator) error {
	w.logger.Info("starting worker")
	lc.Track(w)

	lc.OnStartup(func() {
		if err := w.server.Start(w.mux); err != nil {
			w.logger.Error("worker start failed", "error", err)
			return
		}
		w.ready.Store(true)
		w.logger.Info("worker started")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		w.ready.Store(false)
		w.logger.Info("stopping worker")
		w.server.Shutdown()
		w.logger.Info("worker stopped")
	})

	return nil
}

// NewHandler returns the task handler for processing attempts.
func NewHandler(runner Runner, logger *slog.Logger) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		p, err := ParsePayload(t)
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		logger.Info("processing attempt", "paper_id", p.PaperID, "attempt", p.Attempt)
		if err := runner.Run(ctx, p.PaperID, p.Attempt); err != nil {
			return fmt.Errorf("paper %d attempt %d: %w", p.PaperID, p.Attempt, err)
		}
		return nil
	})
}

// ErrorHandler fails the paper once a task has used up its retries.
func ErrorHandler(failer Failer, logger *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
		retried, ok := asynq.GetRetryCount(ctx)
		if !ok {
			logger.Error("task failed", "type", t.Type(), "error", err)
			return
		}
		limit, _ := asynq.GetMaxRetry(ctx)

		if retried < limit {
			logger.Warn("task failed, will retry", "type", t.Type(), "retried", retried, "error", err)
			return
		}

		p, perr := ParsePayload(t)
		if perr != nil {
			logger.Error("task failed with invalid payload", "type", t.Type(), "error", err)
			return
		}

		reason := fmt.Sprintf("processing failed after %d attempts: %v", retried+1, err)
		if _, ferr := failer.Fail(context.WithoutCancel(ctx), p.PaperID, p.Attempt, reason); ferr != nil {
			logger.Error("fail paper", "paper_id", p.PaperID, "attempt", p.Attempt, "error", ferr)
			return
		}
		logger.Warn("retries exhausted", "paper_id", p.PaperID, "attempt", p.Attempt)
	})
}

type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
