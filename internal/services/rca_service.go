package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/metrics"
	"github.com/lakewatch/lakewatch-rca/internal/models"
	"github.com/lakewatch/lakewatch-rca/internal/progress"
	"github.com/lakewatch/lakewatch-rca/internal/utils"
)

// AnalysisPipeline runs one correlation analysis for a failed run.
type AnalysisPipeline interface {
	Analyze(ctx context.Context, runID string) (models.RCAReport, error)
}

// Enricher produces the optional AI narrative for a finished report.
type Enricher interface {
	Analyze(ctx context.Context, report models.RCAReport) (models.EnrichmentResult, error)
}

// AuditSink persists an audit-trail entry per completed analysis.
type AuditSink interface {
	RecordAnalysis(ctx context.Context, reportID, runID string, confidence models.Confidence) error
}

// ScrapeRunner executes one status-page scrape cycle.
type ScrapeRunner interface {
	Run(ctx context.Context) models.ScrapeSummary
}

// RCAService is the application facade behind the HTTP handlers.
type RCAService struct {
	logger    *slog.Logger
	pipeline  AnalysisPipeline
	enricher  Enricher
	progress  *progress.Store
	audit     AuditSink
	scraper   ScrapeRunner
	latencies *utils.LatencyTracker
}

// NewRCAService constructs the service facade. The enricher, audit sink and
// scraper are optional.
func NewRCAService(logger *slog.Logger, pipeline AnalysisPipeline, enricher Enricher, progressStore *progress.Store, audit AuditSink, scraper ScrapeRunner) *RCAService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RCAService{
		logger:    logger,
		pipeline:  pipeline,
		enricher:  enricher,
		progress:  progressStore,
		audit:     audit,
		scraper:   scraper,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// AnalyzeJobFailure runs the deterministic analysis and, when an enricher is
// configured, augments the report with the AI narrative. Enrichment and
// audit-trail failures degrade the report, never fail it.
func (s *RCAService) AnalyzeJobFailure(ctx context.Context, runID string) (models.RCAReport, error) {
	start := time.Now()
	report, err := s.pipeline.Analyze(ctx, runID)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		return models.RCAReport{}, err
	}
	s.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if s.enricher != nil {
		enrichment, err := s.enricher.Analyze(ctx, report)
		if err != nil {
			s.logger.Warn("enrichment failed", slog.String("run_id", runID), slog.Any("error", err))
		} else {
			report.Enrichment = &enrichment
		}
	}

	if s.audit != nil {
		if err := s.audit.RecordAnalysis(ctx, report.ReportID, runID, report.Confidence); err != nil {
			s.logger.Warn("audit record failed", slog.String("report_id", report.ReportID), slog.Any("error", err))
		}
	}

	return report, nil
}

// AnalysisProgress reports where the enrichment for a run currently is.
func (s *RCAService) AnalysisProgress(runID string) models.AnalysisProgress {
	return s.progress.Get(runID)
}

// RunScraper executes one scrape cycle across all sources.
func (s *RCAService) RunScraper(ctx context.Context) models.ScrapeSummary {
	return s.scraper.Run(ctx)
}

// LatencyP95 returns the current p95 analysis latency.
func (s *RCAService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}
