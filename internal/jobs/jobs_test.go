package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/JaimeStill/qbank/internal/jobs"
	"github.com/JaimeStill/qbank/internal/papers"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnqueuer struct {
	err   error
	task  *asynq.Task
	opts  []asynq.Option
	calls int
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.calls++
	f.task = task
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "id", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct {
	cancelErr error
	deleteErr error
	cancelled []string
	deleted   []string
}

func (f *fakeInspector) CancelProcessing(id string) error {
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

func (f *fakeInspector) DeleteTask(queue, id string) error {
	f.deleted = append(f.deleted, queue+"/"+id)
	return f.deleteErr
}

func (f *fakeInspector) Close() error { return nil }

var testOptions = jobs.Options{Queue: "papers", Concurrency: 2, MaxRetry: 3, Timeout: time.Minute}

func TestTaskID(t *testing.T) {
	if got := jobs.TaskID(12, 3); got != "paper:12:3" {
		t.Errorf("TaskID = %q, want paper:12:3", got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	task, err := jobs.NewTask(12, 3)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if task.Type() != jobs.TypeProcessPaper {
		t.Errorf("type = %q", task.Type())
	}

	p, err := jobs.ParsePayload(task)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if p.PaperID != 12 || p.Attempt != 3 {
		t.Errorf("payload = %+v", p)
	}
}

func TestParsePayloadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"malformed", `{`},
		{"missing paper", `{"attempt":1}`},
		{"missing attempt", `{"paper_id":4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := asynq.NewTask(jobs.TypeProcessPaper, []byte(tt.payload))
			if _, err := jobs.ParsePayload(task); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClientDispatch(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := jobs.New(enq, &fakeInspector{}, testOptions, discard())

	if err := c.Dispatch(context.Background(), 5, 2); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	var taskID, queue any
	for _, o := range enq.opts {
		switch o.Type() {
		case asynq.TaskIDOpt:
			taskID = o.Value()
		case asynq.QueueOpt:
			queue = o.Value()
		}
	}
	if taskID != "paper:5:2" {
		t.Errorf("task id = %v, want paper:5:2", taskID)
	}
	if queue != "papers" {
		t.Errorf("queue = %v, want papers", queue)
	}

	p, err := jobs.ParsePayload(enq.task)
	if err != nil || p.PaperID != 5 || p.Attempt != 2 {
		t.Errorf("payload = %+v, err = %v", p, err)
	}
}

func TestClientDispatchCoalesces(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"id conflict", asynq.ErrTaskIDConflict, false},
		{"duplicate", asynq.ErrDuplicateTask, false},
		{"redis down", errors.New("dial tcp: connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := jobs.New(&fakeEnqueuer{err: tt.err}, &fakeInspector{}, testOptions, discard())
			err := c.Dispatch(context.Background(), 1, 1)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientCancel(t *testing.T) {
	tests := []struct {
		name      string
		cancelErr error
		deleteErr error
		wantErr   bool
	}{
		{"pending task", nil, nil, false},
		{"unknown task", nil, asynq.ErrTaskNotFound, false},
		{"active task", nil, errors.New("cannot delete task in active state"), false},
		{"redis down", errors.New("connection refused"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insp := &fakeInspector{cancelErr: tt.cancelErr, deleteErr: tt.deleteErr}
			c := jobs.New(&fakeEnqueuer{}, insp, testOptions, discard())

			err := c.Cancel(context.Background(), 9, 4)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(insp.cancelled) != 1 || insp.cancelled[0] != "paper:9:4" {
				t.Errorf("cancelled = %v", insp.cancelled)
			}
			if !tt.wantErr && (len(insp.deleted) != 1 || insp.deleted[0] != "papers/paper:9:4") {
				t.Errorf("deleted = %v", insp.deleted)
			}
		})
	}
}

type fakeRunner struct {
	err      error
	paperID  int64
	attempt  int
	runCalls int
}

func (f *fakeRunner) Run(_ context.Context, paperID int64, attempt int) error {
	f.runCalls++
	f.paperID = paperID
	f.attempt = attempt
	return f.err
}

func TestHandler(t *testing.T) {
	t.Run("runs attempt", func(t *testing.T) {
		r := &fakeRunner{}
		task, _ := jobs.NewTask(3, 2)

		if err := jobs.NewHandler(r, discard()).ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("ProcessTask: %v", err)
		}
		if r.paperID != 3 || r.attempt != 2 {
			t.Errorf("ran paper %d attempt %d", r.paperID, r.attempt)
		}
	})

	t.Run("propagates runner error", func(t *testing.T) {
		cause := errors.New("database unavailable")
		r := &fakeRunner{err: cause}
		task, _ := jobs.NewTask(3, 2)

		err := jobs.NewHandler(r, discard()).ProcessTask(context.Background(), task)
		if !errors.Is(err, cause) {
			t.Errorf("err = %v, want %v", err, cause)
		}
	})

	t.Run("invalid payload skips retry", func(t *testing.T) {
		r := &fakeRunner{}
		task := asynq.NewTask(jobs.TypeProcessPaper, []byte(`{}`))

		err := jobs.NewHandler(r, discard()).ProcessTask(context.Background(), task)
		if !errors.Is(err, asynq.SkipRetry) {
			t.Errorf("err = %v, want SkipRetry", err)
		}
		if r.runCalls != 0 {
			t.Error("runner called with invalid payload")
		}
	})
}

type fakeFailer struct {
	calls int
}

func (f *fakeFailer) Fail(context.Context, int64, int, string) (*papers.Paper, error) {
	f.calls++
	return &papers.Paper{}, nil
}

func TestErrorHandlerWithoutRetryMetadata(t *testing.T) {
	f := &fakeFailer{}
	task, _ := jobs.NewTask(1, 1)

	jobs.ErrorHandler(f, discard()).HandleError(context.Background(), task, errors.New("boom"))

	if f.calls != 0 {
		t.Error("paper failed without retry metadata")
	}
}
