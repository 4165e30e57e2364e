package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oracle/internal/config"
	"oracle/internal/research"
	"oracle/internal/store"

	"github.com/go-chi/chi/v5"
)

const defaultSyncResearchTimeout = 5 * time.Minute

// ResearchEngine is the pipeline surface the handlers drive.
type ResearchEngine interface {
	Run(ctx context.Context, query string, emit func(research.Event)) research.AgentState
}

// ReportReader serves persisted reports. Nil when persistence is disabled.
type ReportReader interface {
	ListReports(ctx context.Context, limit, offset int) ([]store.StoredReport, error)
	GetReport(ctx context.Context, id int64) (store.StoredReport, error)
}

type Handler struct {
	cfg     config.Config
	engine  ResearchEngine
	reports ReportReader
}

func NewHandler(cfg config.Config, engine ResearchEngine, reports ReportReader) Handler {
	return Handler{cfg: cfg, engine: engine, reports: reports}
}

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": h.cfg.Environment,
	})
}

type researchRequest struct {
	Query string `json:"query"`
}

// ResearchSync runs the pipeline to completion and returns the final result
// in one response. Pipeline failures still produce a 200 with the error
// carried in the payload.
func (h Handler) ResearchSync(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with a query field")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultSyncResearchTimeout)
	defer cancel()

	state := h.engine.Run(ctx, req.Query, nil)
	writeJSON(w, http.StatusOK, state.Result())
}

func (h Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence_disabled", "report storage is not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	reports, err := h.reports.ListReports(r.Context(), limit, offset)
	if err != nil {
		log.Printf("list reports failed: err=%v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list reports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence_disabled", "report storage is not configured")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "report id must be a positive integer")
		return
	}

	report, err := h.reports.GetReport(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no report with that id")
		return
	}
	if err != nil {
		log.Printf("get report failed: id=%d err=%v", id, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
