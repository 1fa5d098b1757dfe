package units

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/qbank/pkg/handlers"
	"github.com/JaimeStill/qbank/pkg/routes"
)

// Handler provides HTTP endpoints for course unit reference data.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "units"),
	}
}

// Routes returns the route group definition for unit endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/units",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "PUT", Pattern: "", Handler: h.Upsert},
		},
	}
}

// List returns the units of the course named by the course_code query parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("course_code")
	if code == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidUnit)
		return
	}

	list, err := h.sys.ListByCourse(r.Context(), code)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, list)
}

// Find returns a single unit.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	u, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, u)
}

// Upsert creates or replaces a unit from a JSON body.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var cmd UpsertCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidUnit)
		return
	}

	u, err := h.sys.Upsert(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, u)
}
