package analytics

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/JaimeStill/qbank/pkg/handlers"
	"github.com/JaimeStill/qbank/pkg/routes"
)

// Handler provides the dashboard endpoint.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "analytics"),
	}
}

// Routes returns the route group definition for analytics endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/analytics",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Dashboard},
		},
	}
}

// Dashboard returns aggregate counts, optionally narrowed by course_code.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var f Filters
	if c := strings.TrimSpace(r.URL.Query().Get("course_code")); c != "" {
		c = strings.ToUpper(c)
		f.CourseCode = &c
	}

	d, err := h.sys.Dashboard(r.Context(), f)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, d)
}
