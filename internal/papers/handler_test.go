package papers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/qbank/internal/papers"
	"github.com/JaimeStill/qbank/pkg/pagination"
)

func ptr[T any](v T) *T { return &v }

type mockSystem struct {
	listFn     func(ctx context.Context, page pagination.PageRequest, filters papers.Filters) (*pagination.PageResult[papers.Paper], error)
	findFn     func(ctx context.Context, id int64) (*papers.Paper, error)
	statusFn   func(ctx context.Context, id int64) (*papers.StatusView, error)
	eventsFn   func(ctx context.Context, id int64) ([]papers.Event, error)
	openFn     func(ctx context.Context, id int64) (io.ReadCloser, *papers.Paper, error)
	submitFn   func(ctx context.Context, cmd papers.SubmitCommand) (*papers.Paper, error)
	metadataFn func(ctx context.Context, id int64, md papers.Metadata) (*papers.Paper, error)
	retryFn    func(ctx context.Context, id int64) (*papers.Paper, error)
	deleteFn   func(ctx context.Context, id int64) error
}

func (m *mockSystem) Handler(maxUploadSize int64) *papers.Handler {
	return newTestHandler(m, maxUploadSize)
}

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, filters papers.Filters) (*pagination.PageResult[papers.Paper], error) {
	return m.listFn(ctx, page, filters)
}

func (m *mockSystem) Find(ctx context.Context, id int64) (*papers.Paper, error) {
	return m.findFn(ctx, id)
}

func (m *mockSystem) Status(ctx context.Context, id int64) (*papers.StatusView, error) {
	return m.statusFn(ctx, id)
}

func (m *mockSystem) Events(ctx context.Context, id int64) ([]papers.Event, error) {
	return m.eventsFn(ctx, id)
}

func (m *mockSystem) Open(ctx context.Context, id int64) (io.ReadCloser, *papers.Paper, error) {
	return m.openFn(ctx, id)
}

func (m *mockSystem) Submit(ctx context.Context, cmd papers.SubmitCommand) (*papers.Paper, error) {
	return m.submitFn(ctx, cmd)
}

func (m *mockSystem) SupplyMetadata(ctx context.Context, id int64, md papers.Metadata) (*papers.Paper, error) {
	return m.metadataFn(ctx, id, md)
}

func (m *mockSystem) Retry(ctx context.Context, id int64) (*papers.Paper, error) {
	return m.retryFn(ctx, id)
}

func (m *mockSystem) Delete(ctx context.Context, id int64) error {
	return m.deleteFn(ctx, id)
}

func (m *mockSystem) Claim(context.Context, int64, int, time.Duration) (*papers.Paper, error) {
	return nil, nil
}

func (m *mockSystem) Release(context.Context, int64, int) error { return nil }

func (m *mockSystem) Record(context.Context, int64, int, papers.Stage, any) error { return nil }

func (m *mockSystem) Advance(context.Context, int64, int, float64) error { return nil }

func (m *mockSystem) SetSourceInfo(context.Context, int64, int, int, *float64) error { return nil }

func (m *mockSystem) Complete(context.Context, int64, int) (*papers.Paper, error) { return nil, nil }

func (m *mockSystem) Fail(context.Context, int64, int, string) (*papers.Paper, error) {
	return nil, nil
}

func newTestHandler(sys papers.System, maxUploadSize int64) *papers.Handler {
	return papers.NewHandler(
		sys,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
		maxUploadSize,
	)
}

func setupMux(h *papers.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		pattern := route.Method + " " + group.Prefix + route.Pattern
		mux.HandleFunc(pattern, route.Handler)
	}
	return mux
}

func samplePaper() *papers.Paper {
	return &papers.Paper{
		ID:          1,
		CourseCode:  ptr("CS301"),
		ExamType:    ptr(papers.ExamCIE1),
		Filename:    "exam.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		StorageKey:  "papers/1/exam.docx",
		FileSize:    4,
		Status:      papers.StatusProcessing,
		Attempt:     1,
	}
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	return &buf, w.FormDataContentType()
}

var docxData = []byte("PK\x03\x04rest-of-archive")

func TestHandlerUpload(t *testing.T) {
	t.Run("submits paper with metadata", func(t *testing.T) {
		var captured papers.SubmitCommand
		sys := &mockSystem{
			submitFn: func(_ context.Context, cmd papers.SubmitCommand) (*papers.Paper, error) {
				captured = cmd
				return samplePaper(), nil
			},
		}

		body, ct := multipartBody(t, "exam.docx", docxData, map[string]string{
			"course_code":   "cs301",
			"exam_type":     "CIE 1",
			"exam_date":     "2024-03-14",
			"academic_year": "2",
			"semester_type": "odd",
		})
		req := httptest.NewRequest("POST", "/papers", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
		}
		if captured.Filename != "exam.docx" {
			t.Errorf("filename = %q", captured.Filename)
		}
		if !bytes.Equal(captured.Data, docxData) {
			t.Error("file bytes not forwarded")
		}
		if captured.PageCount != nil {
			t.Errorf("page count = %v, want nil for docx", *captured.PageCount)
		}
		md := captured.Metadata
		if md == nil {
			t.Fatal("metadata not captured")
		}
		if md.CourseCode != "cs301" || md.ExamType != papers.ExamCIE1 || md.ExamDate != "2024-03-14" {
			t.Errorf("metadata = %+v", md)
		}
		if md.AcademicYear == nil || *md.AcademicYear != 2 {
			t.Errorf("academic year = %v, want 2", md.AcademicYear)
		}
		if md.SemesterType == nil || *md.SemesterType != papers.SemesterOdd {
			t.Errorf("semester = %v, want ODD", md.SemesterType)
		}
	})

	t.Run("submits paper without metadata", func(t *testing.T) {
		var captured papers.SubmitCommand
		sys := &mockSystem{
			submitFn: func(_ context.Context, cmd papers.SubmitCommand) (*papers.Paper, error) {
				captured = cmd
				return samplePaper(), nil
			},
		}

		body, ct := multipartBody(t, "exam.docx", docxData, nil)
		req := httptest.NewRequest("POST", "/papers", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		if captured.Metadata != nil {
			t.Errorf("metadata = %+v, want nil", captured.Metadata)
		}
	})

	tests := []struct {
		name     string
		filename string
		data     []byte
		fields   map[string]string
		want     int
	}{
		{"missing file", "", nil, nil, http.StatusBadRequest},
		{"unsupported extension", "exam.txt", []byte("plain text"), nil, http.StatusUnsupportedMediaType},
		{"mismatched content", "exam.pdf", docxData, nil, http.StatusUnsupportedMediaType},
		{"invalid academic year", "exam.docx", docxData, map[string]string{"course_code": "CS301", "academic_year": "second"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				submitFn: func(context.Context, papers.SubmitCommand) (*papers.Paper, error) {
					t.Error("submit should not be called")
					return nil, nil
				},
			}

			body, ct := multipartBody(t, tt.filename, tt.data, tt.fields)
			req := httptest.NewRequest("POST", "/papers", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	t.Run("rejects oversized upload", func(t *testing.T) {
		body, ct := multipartBody(t, "exam.docx", bytes.Repeat([]byte("x"), 4096), nil)
		req := httptest.NewRequest("POST", "/papers", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		setupMux(newTestHandler(&mockSystem{}, 512)).ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("maps duplicate to conflict", func(t *testing.T) {
		sys := &mockSystem{
			submitFn: func(context.Context, papers.SubmitCommand) (*papers.Paper, error) {
				return nil, papers.ErrDuplicatePaper
			},
		}

		body, ct := multipartBody(t, "exam.docx", docxData, nil)
		req := httptest.NewRequest("POST", "/papers", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})
}

func TestHandlerList(t *testing.T) {
	var captured papers.Filters
	sys := &mockSystem{
		listFn: func(_ context.Context, _ pagination.PageRequest, f papers.Filters) (*pagination.PageResult[papers.Paper], error) {
			captured = f
			result := pagination.NewPageResult([]papers.Paper{*samplePaper()}, 1, 1, 20)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/papers?course_code=cs301&status=failed", nil)
	setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.CourseCode == nil || *captured.CourseCode != "CS301" {
		t.Errorf("course filter = %v, want CS301", captured.CourseCode)
	}
	if captured.Status == nil || *captured.Status != papers.StatusFailed {
		t.Errorf("status filter = %v, want FAILED", captured.Status)
	}

	var result pagination.PageResult[papers.Paper]
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Data) != 1 {
		t.Errorf("data length = %d, want 1", len(result.Data))
	}
}

func TestHandlerFind(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"found", "/papers/1", nil, http.StatusOK},
		{"not found", "/papers/1", papers.ErrNotFound, http.StatusNotFound},
		{"invalid id", "/papers/abc", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				findFn: func(context.Context, int64) (*papers.Paper, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return samplePaper(), nil
				},
			}

			rec := httptest.NewRecorder()
			setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerStatus(t *testing.T) {
	sys := &mockSystem{
		statusFn: func(_ context.Context, id int64) (*papers.StatusView, error) {
			v := samplePaper().View()
			v.ID = id
			v.Progress = 30
			return &v, nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("GET", "/papers/4/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var v papers.StatusView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.ID != 4 || v.Progress != 30 || v.Status != papers.StatusProcessing {
		t.Errorf("view = %+v", v)
	}
}

func TestHandlerEvents(t *testing.T) {
	t.Run("returns event log", func(t *testing.T) {
		sys := &mockSystem{
			findFn: func(context.Context, int64) (*papers.Paper, error) { return samplePaper(), nil },
			eventsFn: func(context.Context, int64) ([]papers.Event, error) {
				return []papers.Event{
					{ID: 1, PaperID: 1, Attempt: 1, Stage: papers.StageAccepted},
					{ID: 2, PaperID: 1, Attempt: 1, Stage: papers.StageSegmented, Detail: json.RawMessage(`{"questions":4}`)},
				}, nil
			},
		}

		rec := httptest.NewRecorder()
		setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("GET", "/papers/1/events", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var events []papers.Event
		if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(events) != 2 || events[1].Stage != papers.StageSegmented {
			t.Errorf("events = %+v", events)
		}
	})

	t.Run("unknown paper", func(t *testing.T) {
		sys := &mockSystem{
			findFn: func(context.Context, int64) (*papers.Paper, error) { return nil, papers.ErrNotFound },
			eventsFn: func(context.Context, int64) ([]papers.Event, error) {
				t.Error("events should not be loaded")
				return nil, nil
			},
		}

		rec := httptest.NewRecorder()
		setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("GET", "/papers/9/events", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHandlerFile(t *testing.T) {
	sys := &mockSystem{
		openFn: func(context.Context, int64) (io.ReadCloser, *papers.Paper, error) {
			return io.NopCloser(strings.NewReader("PK\x03\x04")), samplePaper(), nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("GET", "/papers/1/file", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `inline; filename="exam.docx"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Body.String() != "PK\x03\x04" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandlerMetadata(t *testing.T) {
	t.Run("accepts metadata", func(t *testing.T) {
		var captured papers.Metadata
		sys := &mockSystem{
			metadataFn: func(_ context.Context, _ int64, md papers.Metadata) (*papers.Paper, error) {
				captured = md
				return samplePaper(), nil
			},
		}

		body := `{"course_code":"CS301","exam_type":"SEE","exam_date":"2024-06-01"}`
		rec := httptest.NewRecorder()
		setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("POST", "/papers/1/metadata", strings.NewReader(body)))

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
		if captured.ExamType != papers.ExamSEE || captured.ExamDate != "2024-06-01" {
			t.Errorf("metadata = %+v", captured)
		}
	})

	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"invalid metadata", `{"course_code":""}`, papers.ErrInvalidMetadata, http.StatusBadRequest},
		{"wrong status", `{"course_code":"CS301"}`, papers.ErrInvalidTransition, http.StatusConflict},
		{"duplicate", `{"course_code":"CS301"}`, papers.ErrDuplicatePaper, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				metadataFn: func(context.Context, int64, papers.Metadata) (*papers.Paper, error) {
					return nil, tt.err
				},
			}

			rec := httptest.NewRecorder()
			setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("POST", "/papers/1/metadata", strings.NewReader(tt.body)))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"failed paper", nil, http.StatusAccepted},
		{"already processing", papers.ErrAlreadyProcessing, http.StatusConflict},
		{"not failed", papers.ErrInvalidTransition, http.StatusConflict},
		{"not found", papers.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				retryFn: func(context.Context, int64) (*papers.Paper, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					p := samplePaper()
					p.Attempt = 2
					return p, nil
				},
			}

			rec := httptest.NewRecorder()
			setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("POST", "/papers/1/retry", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerDelete(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"deleted", nil, http.StatusNoContent},
		{"not found", papers.ErrNotFound, http.StatusNotFound},
		{"storage failure", errors.New("blob service unavailable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				deleteFn: func(context.Context, int64) error { return tt.err },
			}

			rec := httptest.NewRecorder()
			setupMux(newTestHandler(sys, 1<<20)).ServeHTTP(rec, httptest.NewRequest("DELETE", "/papers/1", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
