package models

import "time"

// IncidentType classifies an externally observed platform incident.
type IncidentType string

const (
	IncidentOutage        IncidentType = "outage"
	IncidentDegraded      IncidentType = "degraded_performance"
	IncidentMaintenance   IncidentType = "planned_maintenance"
	IncidentInformational IncidentType = "informational"
)

// IncidentSeverity captures published impact levels.
type IncidentSeverity string

const (
	SeverityCritical IncidentSeverity = "critical"
	SeverityMajor    IncidentSeverity = "major"
	SeverityMinor    IncidentSeverity = "minor"
	SeverityNone     IncidentSeverity = "none"
)

// IncidentStatus tracks the published lifecycle of an incident.
type IncidentStatus string

const (
	StatusInvestigating IncidentStatus = "investigating"
	StatusIdentified    IncidentStatus = "identified"
	StatusMonitoring    IncidentStatus = "monitoring"
	StatusResolved      IncidentStatus = "resolved"
	StatusScheduled     IncidentStatus = "scheduled"
	StatusInProgress    IncidentStatus = "in_progress"
	StatusCompleted     IncidentStatus = "completed"
)

// IncidentUpdate is one timestamped entry in an incident's update journal.
type IncidentUpdate struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// PlatformIncident is one externally observed service-health event. The
// incident identity is derived deterministically from source, normalized
// title and start time so repeated scrapes upsert instead of duplicating.
type PlatformIncident struct {
	IncidentID       string           `json:"incident_id"`
	SourceSystem     string           `json:"source_system"`
	IncidentType     IncidentType     `json:"incident_type"`
	Severity         IncidentSeverity `json:"severity"`
	Status           IncidentStatus   `json:"status"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	AffectedServices []string         `json:"affected_services"`
	AffectedRegions  []string         `json:"affected_regions"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          *time.Time       `json:"end_time,omitempty"`
	LastUpdateTime   time.Time        `json:"last_update_time"`
	Updates          []IncidentUpdate `json:"updates,omitempty"`
	SourceURL        string           `json:"source_url"`
	RawDataPath      string           `json:"raw_data_path,omitempty"`
}

// ScrapeSummary reports per-source outcomes of one scraper cycle.
type ScrapeSummary struct {
	Counts map[string]int    `json:"counts"`
	Errors map[string]string `json:"errors,omitempty"`
}
