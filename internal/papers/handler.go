package papers

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/qbank/internal/normalize"
	"github.com/JaimeStill/qbank/pkg/handlers"
	"github.com/JaimeStill/qbank/pkg/pagination"
	"github.com/JaimeStill/qbank/pkg/routes"
)

// Handler provides HTTP endpoints for paper operations.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// NewHandler creates a Handler with the given system, logger, pagination config, and upload size limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "papers"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for paper endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/papers",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Upload},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "GET", Pattern: "/{id}/status", Handler: h.Status},
			{Method: "GET", Pattern: "/{id}/events", Handler: h.Events},
			{Method: "GET", Pattern: "/{id}/file", Handler: h.File},
			{Method: "POST", Pattern: "/{id}/metadata", Handler: h.Metadata},
			{Method: "POST", Pattern: "/{id}/retry", Handler: h.Retry},
			{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete},
		},
	}
}

// List returns a paginated list of papers with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single paper.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	p, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// Status returns the polling view of a paper: status, progress, and counters.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	v, err := h.sys.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, v)
}

// Events returns the stage-completion log of a paper.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if _, err := h.sys.Find(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	events, err := h.sys.Events(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, events)
}

// File streams the original uploaded file.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	rc, p, err := h.sys.Open(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(p.FileSize, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", p.Filename))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("stream paper file failed", "id", id, "error", err)
	}
}

// Upload accepts a multipart form with a file part and optional metadata fields.
// When course_code is supplied the remaining metadata must be valid and the
// paper proceeds straight to processing; otherwise it waits in METADATA_PENDING.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}

	format, err := normalize.DetectFormat(header.Filename, data)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	md, err := metadataFromForm(r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	cmd := SubmitCommand{
		Data:        data,
		Filename:    header.Filename,
		ContentType: format.ContentType(),
		PageCount:   extractPDFPageCount(h.logger, data, format),
		Metadata:    md,
	}

	p, err := h.sys.Submit(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, p)
}

// Metadata supplies exam metadata for a paper awaiting it.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	var md Metadata
	if err := handlers.DecodeJSON(r, &md); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidMetadata)
		return
	}

	p, err := h.sys.SupplyMetadata(r.Context(), id, md)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, p.View())
}

// Retry reprocesses a FAILED paper under a new attempt.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	p, err := h.sys.Retry(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, p.View())
}

// Delete removes a paper, its questions, and its stored blobs.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.sys.Delete(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func metadataFromForm(r *http.Request) (*Metadata, error) {
	code := strings.TrimSpace(r.FormValue("course_code"))
	if code == "" {
		return nil, nil
	}

	md := &Metadata{
		CourseCode: code,
		ExamType:   ExamType(strings.TrimSpace(r.FormValue("exam_type"))),
		ExamDate:   strings.TrimSpace(r.FormValue("exam_date")),
	}

	if v := r.FormValue("academic_year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return nil, ErrInvalidMetadata
		}
		md.AcademicYear = &year
	}

	if v := r.FormValue("semester_type"); v != "" {
		sem := Semester(strings.ToUpper(v))
		md.SemesterType = &sem
	}

	return md, nil
}

func extractPDFPageCount(logger *slog.Logger, data []byte, format normalize.Format) *int {
	if format != normalize.FormatPDF {
		return nil
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		logger.Warn("failed to extract PDF page count", "error", err)
		return nil
	}

	return &count
}
