package prompts

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/qbank/pkg/handlers"
	"github.com/JaimeStill/qbank/pkg/pagination"
	"github.com/JaimeStill/qbank/pkg/routes"
)

// Handler provides HTTP endpoints for stage instructions.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "prompts"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for prompt endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/prompts",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Stages},
			{Method: "GET", Pattern: "/history", Handler: h.History},
			{Method: "GET", Pattern: "/{stage}", Handler: h.View},
			{Method: "PUT", Pattern: "/{stage}", Handler: h.Override},
			{Method: "DELETE", Pattern: "/{stage}", Handler: h.Reset},
		},
	}
}

// Stages returns the effective view of every stage.
func (h *Handler) Stages(w http.ResponseWriter, r *http.Request) {
	views := make([]StageView, 0, len(Stages()))
	for _, stage := range Stages() {
		v, err := h.sys.View(r.Context(), stage)
		if err != nil {
			handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
			return
		}
		views = append(views, *v)
	}
	handlers.RespondJSON(w, http.StatusOK, views)
}

// History pages through stored overrides. Supports stage and active filters.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	stage, err := ParseStage(r.PathValue("stage"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	v, err := h.sys.View(r.Context(), stage)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, v)
}

// Override stores new instructions for a stage and puts them in effect.
func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	stage, err := ParseStage(r.PathValue("stage"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	var cmd OverrideCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	v, err := h.sys.Override(r.Context(), stage, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, v)
}

// Reset restores a stage's built-in instructions. Stored overrides are kept.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	stage, err := ParseStage(r.PathValue("stage"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	v, err := h.sys.Reset(r.Context(), stage)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, v)
}
