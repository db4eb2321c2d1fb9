package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lakewatch/lakewatch-rca/internal/models"
	"github.com/lakewatch/lakewatch-rca/internal/utils"
)

// Service is the application surface exposed over HTTP.
type Service interface {
	AnalyzeJobFailure(ctx context.Context, runID string) (models.RCAReport, error)
	AnalysisProgress(runID string) models.AnalysisProgress
	RunScraper(ctx context.Context) models.ScrapeSummary
}

// Handler wires the JSON endpoints to the service facade.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes builds the HTTP mux for the public API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rca/analyze", h.analyze)
	mux.HandleFunc("GET /api/v1/rca/progress", h.analysisProgress)
	mux.HandleFunc("POST /api/v1/scraper/run", h.runScraper)
	mux.HandleFunc("GET /healthz", h.health)
	return mux
}

type analyzeRequest struct {
	RunID string `json:"run_id"`
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	report, err := h.svc.AnalyzeJobFailure(r.Context(), req.RunID)
	if err != nil {
		h.writeAnalysisError(w, req.RunID, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeAnalysisError(w http.ResponseWriter, runID string, err error) {
	var notFound *utils.JobNotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}

	var execErr *utils.QueryExecutionError
	var timeoutErr *utils.QueryTimeoutError
	if errors.As(err, &execErr) || errors.As(err, &timeoutErr) {
		h.logger.Error("warehouse failure", slog.String("run_id", runID), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "warehouse query failed")
		return
	}

	h.logger.Error("analysis failed", slog.String("run_id", runID), slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "analysis failed")
}

func (h *Handler) analysisProgress(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.AnalysisProgress(runID))
}

func (h *Handler) runScraper(w http.ResponseWriter, r *http.Request) {
	summary := h.svc.RunScraper(r.Context())
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
