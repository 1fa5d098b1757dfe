package analytics_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/qbank/internal/analytics"
)

type mockSystem struct {
	dashboardFn func(ctx context.Context, filters analytics.Filters) (*analytics.Dashboard, error)
}

func (m *mockSystem) Handler() *analytics.Handler { return newTestHandler(m) }

func (m *mockSystem) Dashboard(ctx context.Context, filters analytics.Filters) (*analytics.Dashboard, error) {
	return m.dashboardFn(ctx, filters)
}

func newTestHandler(sys analytics.System) *analytics.Handler {
	return analytics.NewHandler(sys, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupMux(h *analytics.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		pattern := route.Method + " " + group.Prefix + route.Pattern
		mux.HandleFunc(pattern, route.Handler)
	}
	return mux
}

func TestHandlerDashboard(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		err        error
		wantStatus int
		wantCourse string
	}{
		{"all courses", "/analytics", nil, http.StatusOK, ""},
		{"course filter normalized", "/analytics?course_code=cs301", nil, http.StatusOK, "CS301"},
		{"query failure", "/analytics", errors.New("connection refused"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got analytics.Filters
			sys := &mockSystem{
				dashboardFn: func(_ context.Context, f analytics.Filters) (*analytics.Dashboard, error) {
					got = f
					if tt.err != nil {
						return nil, tt.err
					}
					return &analytics.Dashboard{
						TotalPapers:       3,
						TotalQuestions:    41,
						PendingReview:     5,
						BloomDistribution: map[string]int{"Understanding": 30, "Unclassified": 11},
						Courses:           []analytics.CourseCount{{CourseCode: "CS301", Papers: 3, Questions: 41, InReview: 5}},
					}, nil
				},
			}

			rec := httptest.NewRecorder()
			setupMux(newTestHandler(sys)).ServeHTTP(rec, httptest.NewRequest("GET", tt.url, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantCourse == "" && got.CourseCode != nil {
				t.Errorf("course = %q, want none", *got.CourseCode)
			}
			if tt.wantCourse != "" && (got.CourseCode == nil || *got.CourseCode != tt.wantCourse) {
				t.Errorf("course = %v, want %s", got.CourseCode, tt.wantCourse)
			}

			if tt.wantStatus != http.StatusOK {
				return
			}

			var d analytics.Dashboard
			if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if d.TotalQuestions != 41 || d.BloomDistribution["Understanding"] != 30 {
				t.Errorf("dashboard = %+v", d)
			}
			if len(d.Courses) != 1 || d.Courses[0].InReview != 5 {
				t.Errorf("courses = %+v", d.Courses)
			}
		})
	}
}
