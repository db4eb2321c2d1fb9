package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

// Repo is the data-access surface the pipeline needs.
type Repo interface {
	FetchJobFailure(ctx context.Context, runID string) (models.JobFailure, error)
	FetchIncidents(ctx context.Context, start, end time.Time) ([]models.PlatformIncident, error)
	FetchClusterInfo(ctx context.Context, clusterID string) (*models.ClusterInfo, error)
	FetchAuditFailures(ctx context.Context, start, end time.Time) ([]models.AuditLogEntry, error)
	FetchTaskRunEvents(ctx context.Context, runID string) ([]models.TaskRunEvent, error)
}

// Extractor normalizes raw task run events into SparkError records.
type Extractor interface {
	Extract(events []models.TaskRunEvent) []models.SparkError
}

// Pipeline runs one root-cause analysis end to end: timeline lookup, incident
// candidate scoring, context gathering, verdict.
type Pipeline struct {
	repo      Repo
	extractor Extractor
	scorer    *Scorer
	logger    *slog.Logger
	now       func() time.Time
}

func NewPipeline(repo Repo, extractor Extractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:      repo,
		extractor: extractor,
		scorer:    NewScorer(),
		logger:    logger,
		now:       time.Now,
	}
}

// Analyze builds the RCA report for one failed run. Job and incident lookups
// are required; cluster, audit and task-event lookups are best effort and
// never abort the analysis.
func (p *Pipeline) Analyze(ctx context.Context, runID string) (models.RCAReport, error) {
	job, err := p.repo.FetchJobFailure(ctx, runID)
	if err != nil {
		return models.RCAReport{}, err
	}
	p.logger.Info("found failed job", "job_id", job.JobID, "run_name", job.RunName)

	incidents, err := p.repo.FetchIncidents(ctx, job.PeriodStartTime, job.PeriodEndTime)
	if err != nil {
		return models.RCAReport{}, fmt.Errorf("incident lookup: %w", err)
	}
	p.logger.Info("found candidate incidents", "count", len(incidents))

	correlations := make([]models.CorrelationResult, 0, len(incidents))
	for _, incident := range incidents {
		result := p.scorer.Score(job, incident)
		if result.CorrelationScore > 0 {
			correlations = append(correlations, result)
		}
	}
	// Ties keep original query order.
	sort.SliceStable(correlations, func(i, j int) bool {
		return correlations[i].CorrelationScore > correlations[j].CorrelationScore
	})

	var clusterInfo *models.ClusterInfo
	if len(job.ComputeIDs) > 0 {
		clusterInfo, err = p.repo.FetchClusterInfo(ctx, job.ComputeIDs[0])
		if err != nil {
			p.logger.Warn("cluster lookup failed", "cluster_id", job.ComputeIDs[0], "error", err)
			clusterInfo = nil
		}
	}

	auditLogs, err := p.repo.FetchAuditFailures(ctx, job.PeriodStartTime, job.PeriodEndTime)
	if err != nil {
		p.logger.Warn("audit lookup failed", "error", err)
		auditLogs = nil
	}

	var sparkErrors []models.SparkError
	events, err := p.repo.FetchTaskRunEvents(ctx, runID)
	if err != nil {
		p.logger.Warn("task event lookup failed", "error", err)
	} else if p.extractor != nil {
		sparkErrors = p.extractor.Extract(events)
	}

	rootCause, confidence := DetermineRootCause(job, correlations, auditLogs)

	return models.RCAReport{
		ReportID:            uuid.NewString(),
		JobFailure:          job,
		CorrelatedIncidents: correlations,
		ClusterInfo:         clusterInfo,
		AuditLogs:           auditLogs,
		SparkErrors:         sparkErrors,
		LikelyRootCause:     rootCause,
		Confidence:          confidence,
		CreatedAt:           p.now().UTC(),
	}, nil
}
