package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/models"
	"github.com/lakewatch/lakewatch-rca/internal/progress"
	"github.com/lakewatch/lakewatch-rca/internal/utils"
)

type stubPipeline struct {
	report models.RCAReport
	err    error
}

func (s *stubPipeline) Analyze(context.Context, string) (models.RCAReport, error) {
	return s.report, s.err
}

type stubEnricher struct {
	result models.EnrichmentResult
	err    error
	called bool
}

func (s *stubEnricher) Analyze(context.Context, models.RCAReport) (models.EnrichmentResult, error) {
	s.called = true
	return s.result, s.err
}

type stubAudit struct {
	reportID string
	runID    string
	err      error
}

func (s *stubAudit) RecordAnalysis(_ context.Context, reportID, runID string, _ models.Confidence) error {
	s.reportID = reportID
	s.runID = runID
	return s.err
}

type stubScraper struct {
	summary models.ScrapeSummary
}

func (s *stubScraper) Run(context.Context) models.ScrapeSummary { return s.summary }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseReport() models.RCAReport {
	return models.RCAReport{
		ReportID:        "rep-1",
		JobFailure:      models.JobFailure{RunID: "9001"},
		LikelyRootCause: "Cluster initialization or configuration issue",
		Confidence:      models.ConfidenceLow,
	}
}

func TestAnalyzeJobFailureWithEnrichment(t *testing.T) {
	enricher := &stubEnricher{result: models.EnrichmentResult{
		RootCauseCategory: "Cluster Configuration",
		LikelyRootCause:   "Driver node type unavailable",
		Confidence:        models.ConfidenceMedium,
	}}
	audit := &stubAudit{}
	svc := NewRCAService(testLogger(), &stubPipeline{report: baseReport()}, enricher, progress.NewStore(time.Second), audit, nil)

	report, err := svc.AnalyzeJobFailure(context.Background(), "9001")
	if err != nil {
		t.Fatalf("AnalyzeJobFailure: %v", err)
	}
	if report.Enrichment == nil || report.Enrichment.RootCauseCategory != "Cluster Configuration" {
		t.Errorf("enrichment = %+v", report.Enrichment)
	}
	// Deterministic verdict is never overridden by enrichment.
	if report.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %s", report.Confidence)
	}
	if audit.reportID != "rep-1" || audit.runID != "9001" {
		t.Errorf("audit = %+v", audit)
	}
}

func TestAnalyzeJobFailureEnrichmentFailureDegrades(t *testing.T) {
	enricher := &stubEnricher{err: errors.New("endpoint unreachable")}
	svc := NewRCAService(testLogger(), &stubPipeline{report: baseReport()}, enricher, progress.NewStore(time.Second), nil, nil)

	report, err := svc.AnalyzeJobFailure(context.Background(), "9001")
	if err != nil {
		t.Fatalf("enrichment failure must not fail analysis: %v", err)
	}
	if report.Enrichment != nil {
		t.Errorf("enrichment = %+v", report.Enrichment)
	}
}

func TestAnalyzeJobFailureAuditFailureDegrades(t *testing.T) {
	audit := &stubAudit{err: errors.New("table missing")}
	svc := NewRCAService(testLogger(), &stubPipeline{report: baseReport()}, nil, progress.NewStore(time.Second), audit, nil)

	if _, err := svc.AnalyzeJobFailure(context.Background(), "9001"); err != nil {
		t.Fatalf("audit failure must not fail analysis: %v", err)
	}
}

func TestAnalyzeJobFailurePipelineErrorPropagates(t *testing.T) {
	pipelineErr := &utils.JobNotFoundError{RunID: "9001"}
	enricher := &stubEnricher{}
	svc := NewRCAService(testLogger(), &stubPipeline{err: pipelineErr}, enricher, progress.NewStore(time.Second), nil, nil)

	_, err := svc.AnalyzeJobFailure(context.Background(), "9001")
	var notFound *utils.JobNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected JobNotFoundError, got %v", err)
	}
	if enricher.called {
		t.Error("enricher must not run for failed analyses")
	}
}

func TestAnalysisProgressPassthrough(t *testing.T) {
	store := progress.NewStore(time.Second)
	store.Set("9001", 3, "working", models.ProgressInProgress)
	svc := NewRCAService(testLogger(), &stubPipeline{}, nil, store, nil, nil)

	if got := svc.AnalysisProgress("9001"); got.Step != 3 {
		t.Errorf("progress = %+v", got)
	}
}

func TestRunScraperPassthrough(t *testing.T) {
	summary := models.ScrapeSummary{Counts: map[string]int{"databricks_aws": 2}}
	svc := NewRCAService(testLogger(), &stubPipeline{}, nil, progress.NewStore(time.Second), nil, &stubScraper{summary: summary})

	got := svc.RunScraper(context.Background())
	if got.Counts["databricks_aws"] != 2 {
		t.Errorf("summary = %+v", got)
	}
}
