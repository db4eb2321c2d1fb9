package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

// Scorer computes correlation scores between a job failure and candidate
// platform incidents. Scoring is a pure function of its inputs given a fixed
// clock; the clock is injectable so open-ended incidents score
// deterministically in tests.
type Scorer struct {
	now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// relevantServices are the platform surfaces a job failure can plausibly
// depend on. Matching is substring, case-insensitive.
var relevantServices = []string{
	"databricks sql",
	"compute",
	"jobs",
	"notebooks",
	"unity catalog",
	"delta live tables",
	"clusters",
	"workspace",
}

type codePattern struct {
	pattern *regexp.Regexp
	weight  int
	reason  string
}

// codePatterns cross-match the termination code against incident text. A rule
// applies only when the pattern matches both sides; rules stack.
var codePatterns = []codePattern{
	{regexp.MustCompile(`(?i)cloud|aws|azure|gcp`), 15, "Cloud infrastructure error"},
	{regexp.MustCompile(`(?i)cluster|driver|executor`), 10, "Cluster initialization error"},
	{regexp.MustCompile(`(?i)network|connection|timeout`), 10, "Network connectivity issue"},
	{regexp.MustCompile(`(?i)permission|access|forbidden`), 5, "Permission/access issue"},
}

// Score weighs one incident against one job failure. The raw sum is clamped
// to [0,100].
func (s *Scorer) Score(job models.JobFailure, incident models.PlatformIncident) models.CorrelationResult {
	score := 0
	var reasons []string
	var timeOverlap, regionMatch, serviceMatch bool

	incidentEnd := s.now()
	if incident.EndTime != nil {
		incidentEnd = *incident.EndTime
	}
	if !incident.StartTime.After(job.PeriodEndTime) && !incidentEnd.Before(job.PeriodStartTime) {
		timeOverlap = true
		score += 50
		reasons = append(reasons, fmt.Sprintf("Incident was active during job execution (%s)", incident.StartTime.UTC().Format(time.RFC3339)))
	}

	switch incident.Severity {
	case models.SeverityCritical:
		score += 20
		reasons = append(reasons, "Critical severity incident")
	case models.SeverityMajor:
		score += 15
		reasons = append(reasons, "Major severity incident")
	}

	switch incident.IncidentType {
	case models.IncidentOutage:
		score += 15
		reasons = append(reasons, "Service outage reported")
	case models.IncidentDegraded:
		score += 10
		reasons = append(reasons, "Degraded performance reported")
	}

	for _, service := range incident.AffectedServices {
		lower := strings.ToLower(service)
		for _, relevant := range relevantServices {
			if strings.Contains(lower, relevant) {
				serviceMatch = true
				score += 10
				reasons = append(reasons, "Affected service: "+service)
				break
			}
		}
		if serviceMatch {
			break
		}
	}

	for _, region := range incident.AffectedRegions {
		if region == "Global" {
			regionMatch = true
			score += 5
			reasons = append(reasons, "Global incident affecting all regions")
			break
		}
	}

	if job.TerminationCode != "" {
		incidentText := incident.Title + " " + incident.Description
		for _, rule := range codePatterns {
			if rule.pattern.MatchString(job.TerminationCode) && rule.pattern.MatchString(incidentText) {
				score += rule.weight
				reasons = append(reasons, rule.reason)
			}
		}
	}

	if score > 100 {
		score = 100
	}

	return models.CorrelationResult{
		Incident:           incident,
		CorrelationScore:   score,
		CorrelationReasons: reasons,
		TimeOverlap:        timeOverlap,
		RegionMatch:        regionMatch,
		ServiceMatch:       serviceMatch,
	}
}
