package engine

import (
	"regexp"
	"strings"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

var permissionPattern = regexp.MustCompile(`(?i)permission|access|forbidden`)

// DetermineRootCause derives the single best-effort verdict from the ranked
// correlations, audit logs and termination-code heuristics. The decision
// table is evaluated in priority order; the first match wins.
func DetermineRootCause(job models.JobFailure, correlations []models.CorrelationResult, auditLogs []models.AuditLogEntry) (string, models.Confidence) {
	if len(correlations) > 0 && correlations[0].CorrelationScore >= 70 {
		return "Platform outage: " + correlations[0].Incident.Title, models.ConfidenceHigh
	}

	for _, entry := range auditLogs {
		if entry.StatusCode == 403 || (entry.ErrorMessage != "" && permissionPattern.MatchString(entry.ErrorMessage)) {
			msg := entry.ErrorMessage
			if msg == "" {
				msg = "Access forbidden"
			}
			return "Permission denied: " + msg, models.ConfidenceMedium
		}
	}

	if len(correlations) > 0 && correlations[0].CorrelationScore >= 40 {
		return "Possible platform issue: " + correlations[0].Incident.Title, models.ConfidenceMedium
	}

	if job.TerminationCode != "" {
		code := strings.ToLower(job.TerminationCode)
		switch {
		case strings.Contains(code, "cluster"):
			return "Cluster initialization or configuration issue", models.ConfidenceLow
		case strings.Contains(code, "timeout"), strings.Contains(code, "network"):
			return "Network connectivity or timeout issue", models.ConfidenceLow
		case strings.Contains(code, "spark"), strings.Contains(code, "config"):
			return "Spark configuration or runtime error", models.ConfidenceLow
		}
	}

	return "Unable to determine root cause - manual investigation required", models.ConfidenceNone
}
