package engine

import (
	"reflect"
	"testing"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

var (
	jobStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	jobEnd   = time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
)

func testJob(code string) models.JobFailure {
	return models.JobFailure{
		JobID:           "42",
		RunID:           "9001",
		RunName:         "nightly-etl",
		PeriodStartTime: jobStart,
		PeriodEndTime:   jobEnd,
		ResultState:     "FAILED",
		TerminationCode: code,
	}
}

func fixedScorer() *Scorer {
	s := NewScorer()
	s.now = func() time.Time { return time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC) }
	return s
}

func TestScoreOverlappingCriticalOutage(t *testing.T) {
	incidentEnd := time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)
	incident := models.PlatformIncident{
		IncidentID:       "databricks_aws_sql_outage",
		Severity:         models.SeverityCritical,
		IncidentType:     models.IncidentOutage,
		Title:            "Databricks SQL outage",
		AffectedServices: []string{"Databricks SQL"},
		AffectedRegions:  []string{"Global"},
		StartTime:        time.Date(2024, 3, 1, 9, 50, 0, 0, time.UTC),
		EndTime:          &incidentEnd,
	}

	result := fixedScorer().Score(testJob(""), incident)

	// 50 overlap + 20 critical + 15 outage + 10 service + 5 global = 100
	if result.CorrelationScore != 100 {
		t.Errorf("score = %d, want 100", result.CorrelationScore)
	}
	if !result.TimeOverlap || !result.RegionMatch || !result.ServiceMatch {
		t.Errorf("facets = %v/%v/%v", result.TimeOverlap, result.RegionMatch, result.ServiceMatch)
	}
	if len(result.CorrelationReasons) != 5 {
		t.Errorf("reasons = %v", result.CorrelationReasons)
	}
}

func TestScoreClampedAt100(t *testing.T) {
	incidentEnd := jobEnd.Add(time.Hour)
	incident := models.PlatformIncident{
		Severity:         models.SeverityCritical,
		IncidentType:     models.IncidentOutage,
		Title:            "Cloud cluster network access outage on AWS",
		Description:      "Driver connection timeouts and permission failures",
		AffectedServices: []string{"Compute"},
		AffectedRegions:  []string{"Global"},
		StartTime:        jobStart.Add(-time.Hour),
		EndTime:          &incidentEnd,
	}
	// All four cross-match rules fire on top of the base 100.
	result := fixedScorer().Score(testJob("CLOUD_CLUSTER_NETWORK_ACCESS_FAILURE"), incident)
	if result.CorrelationScore != 100 {
		t.Errorf("score = %d, want clamped 100", result.CorrelationScore)
	}
}

func TestScoreCrossMatchRequiresBothSides(t *testing.T) {
	incidentEnd := jobEnd.Add(time.Hour)
	incident := models.PlatformIncident{
		Severity:     models.SeverityMinor,
		IncidentType: models.IncidentInformational,
		Title:        "Scheduled maintenance notice",
		Description:  "No impact expected",
		StartTime:    jobStart.Add(-time.Minute),
		EndTime:      &incidentEnd,
	}
	// Termination code matches the network rule, incident text does not.
	result := fixedScorer().Score(testJob("NETWORK_TIMEOUT"), incident)
	if result.CorrelationScore != 50 {
		t.Errorf("score = %d, want 50 (overlap only)", result.CorrelationScore)
	}
}

func TestScoreNoOverlapNoMatch(t *testing.T) {
	incidentEnd := jobStart.Add(-30 * time.Minute)
	incident := models.PlatformIncident{
		Severity:     models.SeverityNone,
		IncidentType: models.IncidentInformational,
		StartTime:    jobStart.Add(-time.Hour),
		EndTime:      &incidentEnd,
	}
	result := fixedScorer().Score(testJob(""), incident)
	if result.CorrelationScore != 0 {
		t.Errorf("score = %d, want 0", result.CorrelationScore)
	}
}

func TestScoreOpenEndedIncidentUsesClock(t *testing.T) {
	incident := models.PlatformIncident{
		Severity:     models.SeverityMajor,
		IncidentType: models.IncidentDegraded,
		StartTime:    jobStart.Add(-2 * time.Hour),
	}

	// Clock after the job window: the incident is still open and overlaps.
	s := fixedScorer()
	result := s.Score(testJob(""), incident)
	if !result.TimeOverlap {
		t.Error("open incident should overlap when clock is past job start")
	}

	// Clock before the job window: the open interval ends before the job.
	s.now = func() time.Time { return jobStart.Add(-time.Hour) }
	result = s.Score(testJob(""), incident)
	if result.TimeOverlap {
		t.Error("open incident should not overlap when clock predates job start")
	}
}

func TestScoreDeterministicAndOrderIndependent(t *testing.T) {
	s := fixedScorer()
	job := testJob("CLUSTER_ERROR")
	end := jobEnd.Add(time.Hour)
	a := models.PlatformIncident{
		IncidentID:   "a",
		Severity:     models.SeverityCritical,
		IncidentType: models.IncidentOutage,
		Title:        "Cluster launch failures",
		StartTime:    jobStart.Add(-time.Minute),
		EndTime:      &end,
	}
	b := models.PlatformIncident{
		IncidentID:   "b",
		Severity:     models.SeverityMajor,
		IncidentType: models.IncidentDegraded,
		Title:        "Slow queries",
		StartTime:    jobStart.Add(-time.Minute),
		EndTime:      &end,
	}

	first := []models.CorrelationResult{s.Score(job, a), s.Score(job, b)}
	second := []models.CorrelationResult{s.Score(job, b), s.Score(job, a)}

	if !reflect.DeepEqual(first[0], second[1]) || !reflect.DeepEqual(first[1], second[0]) {
		t.Error("scoring is not order independent")
	}
	if !reflect.DeepEqual(first[0], s.Score(job, a)) {
		t.Error("scoring is not deterministic")
	}
}
