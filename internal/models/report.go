package models

import "time"

// Confidence is the engine's qualitative certainty in its verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// CorrelationResult pairs a candidate incident with a heuristic score
// explaining how likely it is to have caused the job failure. Computed
// fresh per analysis, never persisted.
type CorrelationResult struct {
	Incident           PlatformIncident `json:"incident"`
	CorrelationScore   int              `json:"correlation_score"`
	CorrelationReasons []string         `json:"correlation_reasons"`
	TimeOverlap        bool             `json:"time_overlap"`
	RegionMatch        bool             `json:"region_match"`
	ServiceMatch       bool             `json:"service_match"`
}

// EnrichmentResult is the fixed-shape narrative produced by the AI backend.
// Advisory only: it never overrides the deterministic verdict.
type EnrichmentResult struct {
	RootCauseCategory         string     `json:"root_cause_category"`
	LikelyRootCause           string     `json:"likely_root_cause"`
	Confidence                Confidence `json:"confidence"`
	Analysis                  string     `json:"analysis"`
	PlatformOutagesFound      string     `json:"platform_outages_found"`
	SourcesVerified           []string   `json:"sources_verified"`
	Evidence                  string     `json:"evidence"`
	RemediationSteps          []string   `json:"remediation_steps"`
	PreventionRecommendations []string   `json:"prevention_recommendations"`
}

// RCAReport is the final analysis output returned to the caller.
type RCAReport struct {
	ReportID            string              `json:"report_id"`
	JobFailure          JobFailure          `json:"job_failure"`
	CorrelatedIncidents []CorrelationResult `json:"correlated_incidents"`
	ClusterInfo         *ClusterInfo        `json:"cluster_info,omitempty"`
	AuditLogs           []AuditLogEntry     `json:"audit_logs,omitempty"`
	SparkErrors         []SparkError        `json:"spark_errors,omitempty"`
	LikelyRootCause     string              `json:"likely_root_cause"`
	Confidence          Confidence          `json:"confidence"`
	Enrichment          *EnrichmentResult   `json:"enrichment,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}
