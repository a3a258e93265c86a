// Package gridhttp exposes the grid data operations over HTTP and provides a
// client that implements the same contract for remote consumers.
package gridhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"forestcore/internal/adapters/export"
	"forestcore/pkg/domain"
)

// StatusForeignKeyConflict is the dedicated status code reporting a delete
// blocked by a referencing table.
const StatusForeignKeyConflict = 555

// Service is the surface the handler serves. The core service satisfies it.
type Service interface {
	domain.DataSource
	RunValidation(ctx context.Context, schema string) (domain.ValidationRunSummary, error)
}

// Handler provides HTTP access to paginated grid data, row mutation,
// validation state, and grid snapshot exports.
type Handler struct {
	Service Service
	// Exporter serves the grid export route when set; export requests are
	// answered 404 until the server wires one in.
	Exporter *export.Exporter
}

// NewHandler constructs a grid HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "grid service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case strings.HasPrefix(path, "/api/v1/grid/"):
		h.handleGrid(w, r, strings.TrimPrefix(path, "/api/v1/grid/"))
	case path == "/api/v1/validations/report":
		h.handleValidationReport(w, r)
	case path == "/api/v1/validations/procedures":
		h.handleValidationProcedures(w, r)
	case path == "/api/v1/validations/run":
		h.handleRunValidation(w, r)
	case path == "/api/v1/refreshviews":
		h.handleRefreshViews(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleGrid(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	entity := domain.EntityType(segments[0])
	if entity == "" {
		writeError(w, http.StatusNotFound, "grid entity not found")
		return
	}

	if len(segments) == 2 && segments[1] == "fetch" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleFetch(w, r, entity)
		return
	}

	if len(segments) == 2 && segments[1] == "export" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExport(w, r, entity)
		return
	}

	if len(segments) >= 2 && segments[1] == "rows" {
		switch {
		case len(segments) == 2 && (r.Method == http.MethodPost || r.Method == http.MethodPatch):
			h.handleSave(w, r, entity)
		case len(segments) == 3 && r.Method == http.MethodDelete:
			h.handleDelete(w, r, entity, segments[2])
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	writeError(w, http.StatusNotFound, "grid endpoint not found")
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request, entity domain.EntityType) {
	var req domain.PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid fetch request payload")
		return
	}
	req.Entity = entity
	result, err := h.Service.FetchPage(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if result.Rows == nil {
		result.Rows = []domain.Row{}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExport collects the full filtered result set for an entity and stores
// one artifact per requested format. Formats come from repeatable or
// comma-separated `format` query values; an empty list defaults to JSON.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, entity domain.EntityType) {
	if h.Exporter == nil {
		writeError(w, http.StatusNotFound, "export not configured")
		return
	}
	var req domain.PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	req.Entity = entity
	formats, err := parseExportFormats(r.URL.Query()["format"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	artifacts, err := h.Exporter.ExportGrid(r.Context(), req, formats...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"artifacts": artifacts})
}

func parseExportFormats(raw []string) ([]export.Format, error) {
	var formats []export.Format
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			switch f := export.Format(part); f {
			case export.FormatJSON, export.FormatCSV:
				formats = append(formats, f)
			default:
				return nil, fmt.Errorf("unsupported export format %q", part)
			}
		}
	}
	return formats, nil
}

type saveRequest struct {
	OldRow domain.Row   `json:"oldRow"`
	NewRow domain.Row   `json:"newRow"`
	Scope  domain.Scope `json:"scope"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request, entity domain.EntityType) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid save request payload")
		return
	}
	saved, err := h.Service.SaveRow(r.Context(), entity, req.Scope, req.OldRow, req.NewRow)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"row": saved})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, entity domain.EntityType, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid row id")
		return
	}
	scope := scopeFromQuery(r)
	if err := h.Service.DeleteRow(r.Context(), entity, scope, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) handleValidationReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := h.Service.FetchValidationReport(r.Context(), r.URL.Query().Get("schema"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if report.Failed == nil {
		report.Failed = []domain.ValidationFailure{}
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleValidationProcedures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	procedures, err := h.Service.FetchValidationProcedures(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"procedures": procedures})
}

func (h *Handler) handleRunValidation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := h.Service.RunValidation(r.Context(), r.URL.Query().Get("schema"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRefreshViews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.Service.RefreshSummaryView(r.Context(), r.URL.Query().Get("schema")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

func scopeFromQuery(r *http.Request) domain.Scope {
	q := r.URL.Query()
	scope := domain.Scope{SchemaName: q.Get("schema")}
	if v, err := strconv.ParseInt(q.Get("plotID"), 10, 64); err == nil {
		scope.PlotID = v
	}
	if v, err := strconv.Atoi(q.Get("plotCensusNumber")); err == nil {
		scope.PlotCensusNumber = v
	}
	if v, err := strconv.ParseInt(q.Get("quadratID"), 10, 64); err == nil {
		scope.QuadratID = v
	}
	return scope
}

// writeServiceError maps domain errors onto HTTP statuses. Foreign-key
// conflicts get the dedicated 555 status so clients can rebuild the typed
// error.
func writeServiceError(w http.ResponseWriter, err error) {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, StatusForeignKeyConflict, map[string]any{
			"error":            conflict.Error(),
			"referencingTable": conflict.ReferencingTable,
		})
		return
	}
	var status *domain.StatusError
	if errors.As(err, &status) {
		writeError(w, status.Code, status.Message)
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, domain.ErrEmptyKey) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
