package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/cache"
	"github.com/lakewatch/lakewatch-rca/internal/models"
	"github.com/lakewatch/lakewatch-rca/internal/utils"
	"github.com/lakewatch/lakewatch-rca/internal/warehouse"
)

// Gateway abstracts statement execution for the repository.
type Gateway interface {
	Execute(ctx context.Context, query string) ([]warehouse.Record, error)
}

// WarehouseRepo provides typed access to the system tables and the incident
// store. All query text is built through the sqlsafe helpers; there are no
// bind parameters in the target protocol.
type WarehouseRepo struct {
	gw            Gateway
	catalogSchema string
	cache         cache.Provider
	incidentsTTL  time.Duration
	clustersTTL   time.Duration
	logger        *slog.Logger
}

// NewWarehouseRepo constructs a repository over the given gateway. The
// catalogSchema must already be validated identifier text.
func NewWarehouseRepo(gw Gateway, catalogSchema string, cacheProvider cache.Provider, incidentsTTL, clustersTTL time.Duration, logger *slog.Logger) (*WarehouseRepo, error) {
	validated, err := warehouse.SafeIdentifier(catalogSchema, "catalogSchema")
	if err != nil {
		return nil, err
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WarehouseRepo{
		gw:            gw,
		catalogSchema: validated,
		cache:         cacheProvider,
		incidentsTTL:  incidentsTTL,
		clustersTTL:   clustersTTL,
		logger:        logger,
	}, nil
}

// FetchJobFailure returns the timeline row for a failed run. Zero rows, or a
// run that did not fail, yields JobNotFoundError.
func (r *WarehouseRepo) FetchJobFailure(ctx context.Context, runID string) (models.JobFailure, error) {
	query := fmt.Sprintf(`SELECT job_id, run_id, run_name, period_start_time, period_end_time,
  result_state, termination_code, trigger_type, compute_ids
FROM system.lakeflow.job_run_timeline
WHERE run_id = '%s' AND result_state = 'FAILED'
LIMIT 1`, warehouse.EscapeString(runID))

	rows, err := r.gw.Execute(ctx, query)
	if err != nil {
		return models.JobFailure{}, fmt.Errorf("fetch job failure: %w", err)
	}
	if len(rows) == 0 {
		return models.JobFailure{}, &utils.JobNotFoundError{RunID: runID}
	}

	row := rows[0]
	failure := models.JobFailure{
		JobID:           stringField(row, "job_id"),
		RunID:           stringField(row, "run_id"),
		RunName:         stringField(row, "run_name"),
		PeriodStartTime: timeField(row, "period_start_time"),
		PeriodEndTime:   timeField(row, "period_end_time"),
		ResultState:     stringField(row, "result_state"),
		TerminationCode: stringField(row, "termination_code"),
		TriggerType:     stringField(row, "trigger_type"),
		ComputeIDs:      stringSliceField(row, "compute_ids"),
	}
	if failure.ResultState != "FAILED" {
		return models.JobFailure{}, &utils.JobNotFoundError{RunID: runID}
	}
	return failure, nil
}

// FetchIncidents returns platform incidents whose active interval overlaps
// the [start-1h, end+1h] window, restricted to outage/degraded types or
// critical/major severity. Results are cached per window.
func (r *WarehouseRepo) FetchIncidents(ctx context.Context, start, end time.Time) ([]models.PlatformIncident, error) {
	cacheKey := fmt.Sprintf("rca:incidents:%d:%d", start.Unix(), end.Unix())
	if data, err := r.cache.Get(ctx, cacheKey); err == nil {
		var cached []models.PlatformIncident
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	startTS := utils.SQLTimestamp(start)
	endTS := utils.SQLTimestamp(end)
	query := fmt.Sprintf(`SELECT incident_id, source_system, incident_type, severity, status, title,
  description, affected_services, affected_regions, start_time, end_time,
  last_update_time, updates_json, source_url, raw_data_path
FROM %s.platform_status_events
WHERE (
    (start_time <= TIMESTAMP '%s' AND (end_time IS NULL OR end_time >= TIMESTAMP '%s'))
    OR (start_time >= TIMESTAMP '%s' - INTERVAL 1 HOUR AND start_time <= TIMESTAMP '%s' + INTERVAL 1 HOUR)
  )
  AND (incident_type IN ('outage', 'degraded_performance') OR severity IN ('critical', 'major'))
ORDER BY start_time DESC`, r.catalogSchema, endTS, startTS, startTS, endTS)

	rows, err := r.gw.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch incidents: %w", err)
	}

	incidents := make([]models.PlatformIncident, 0, len(rows))
	for _, row := range rows {
		incidents = append(incidents, decodeIncident(row))
	}

	if r.incidentsTTL > 0 {
		if payload, err := json.Marshal(incidents); err == nil {
			if err := r.cache.Set(ctx, cacheKey, payload, r.incidentsTTL); err != nil {
				r.logger.Debug("incident cache write failed", "error", err)
			}
		}
	}
	return incidents, nil
}

// FetchClusterInfo returns the latest configuration row for a cluster, or nil
// when the cluster is unknown.
func (r *WarehouseRepo) FetchClusterInfo(ctx context.Context, clusterID string) (*models.ClusterInfo, error) {
	cacheKey := "rca:cluster:" + clusterID
	if data, err := r.cache.Get(ctx, cacheKey); err == nil {
		var cached models.ClusterInfo
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	query := fmt.Sprintf(`SELECT cluster_id, cluster_name, state, owned_by, change_time,
  driver_node_type_id, node_type_id, num_workers
FROM system.compute.clusters
WHERE cluster_id = '%s'
ORDER BY change_time DESC
LIMIT 1`, warehouse.EscapeString(clusterID))

	rows, err := r.gw.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch cluster info: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	info := models.ClusterInfo{
		ClusterID:        stringField(row, "cluster_id"),
		ClusterName:      stringField(row, "cluster_name"),
		State:            stringField(row, "state"),
		OwnedBy:          stringField(row, "owned_by"),
		ChangeTime:       timeField(row, "change_time"),
		DriverNodeTypeID: stringField(row, "driver_node_type_id"),
		NodeTypeID:       stringField(row, "node_type_id"),
		NumWorkers:       intField(row, "num_workers"),
	}
	if r.clustersTTL > 0 {
		if payload, err := json.Marshal(info); err == nil {
			if err := r.cache.Set(ctx, cacheKey, payload, r.clustersTTL); err != nil {
				r.logger.Debug("cluster cache write failed", "error", err)
			}
		}
	}
	return &info, nil
}

// FetchAuditFailures returns access-audit entries with error status codes in
// a ±5 minute window around the failure.
func (r *WarehouseRepo) FetchAuditFailures(ctx context.Context, start, end time.Time) ([]models.AuditLogEntry, error) {
	query := fmt.Sprintf(`SELECT event_time, user_identity.email AS user_email, service_name, action_name,
  request_id, response.status_code AS status_code, response.error_message AS error_message
FROM system.access.audit
WHERE event_time >= TIMESTAMP '%s' - INTERVAL 5 MINUTES
  AND event_time <= TIMESTAMP '%s' + INTERVAL 5 MINUTES
  AND response.status_code >= 400
ORDER BY event_time DESC
LIMIT 20`, utils.SQLTimestamp(start), utils.SQLTimestamp(end))

	rows, err := r.gw.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch audit logs: %w", err)
	}

	entries := make([]models.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.AuditLogEntry{
			EventTime:    timeField(row, "event_time"),
			UserEmail:    stringField(row, "user_email"),
			ServiceName:  stringField(row, "service_name"),
			ActionName:   stringField(row, "action_name"),
			RequestID:    stringField(row, "request_id"),
			StatusCode:   intField(row, "status_code"),
			ErrorMessage: stringField(row, "error_message"),
		})
	}
	return entries, nil
}

// FetchTaskRunEvents returns failed task run rows with their event payloads.
func (r *WarehouseRepo) FetchTaskRunEvents(ctx context.Context, runID string) ([]models.TaskRunEvent, error) {
	query := fmt.Sprintf(`SELECT task_run_id, task_key, period_start_time, period_end_time,
  result_state, termination_code, event_details
FROM system.lakeflow.job_task_run_timeline
WHERE run_id = '%s' AND result_state = 'FAILED'
ORDER BY period_start_time DESC
LIMIT 50`, warehouse.EscapeString(runID))

	rows, err := r.gw.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch task run events: %w", err)
	}

	events := make([]models.TaskRunEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.TaskRunEvent{
			TaskRunID:       stringField(row, "task_run_id"),
			TaskKey:         stringField(row, "task_key"),
			PeriodStartTime: timeField(row, "period_start_time"),
			PeriodEndTime:   timeField(row, "period_end_time"),
			ResultState:     stringField(row, "result_state"),
			TerminationCode: stringField(row, "termination_code"),
			EventDetails:    stringField(row, "event_details"),
		})
	}
	return events, nil
}

// UpsertIncident merges one incident into the incident store keyed on its
// deterministic identity. Matched rows update mutable fields only; the
// original incident_id and start_time are never touched.
func (r *WarehouseRepo) UpsertIncident(ctx context.Context, incident models.PlatformIncident) error {
	startTS, err := warehouse.SafeTimestamp(incident.StartTime.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("incident %s: %w", incident.IncidentID, err)
	}
	lastUpdateTS, err := warehouse.SafeTimestamp(incident.LastUpdateTime.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("incident %s: %w", incident.IncidentID, err)
	}
	endExpr := "NULL"
	if incident.EndTime != nil {
		endTS, err := warehouse.SafeTimestamp(incident.EndTime.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("incident %s: %w", incident.IncidentID, err)
		}
		endExpr = fmt.Sprintf("TIMESTAMP '%s'", endTS)
	}

	services := incident.AffectedServices
	if len(services) == 0 {
		services = []string{"Unknown"}
	}
	regions := incident.AffectedRegions
	if len(regions) == 0 {
		regions = []string{"Global"}
	}

	updatesJSON, err := json.Marshal(incident.Updates)
	if err != nil {
		return fmt.Errorf("incident %s: marshal updates: %w", incident.IncidentID, err)
	}

	query := fmt.Sprintf(`MERGE INTO %s.platform_status_events AS target
USING (
  SELECT
    '%s' AS incident_id,
    '%s' AS source_system,
    '%s' AS incident_type,
    '%s' AS severity,
    '%s' AS status,
    '%s' AS title,
    '%s' AS description,
    ARRAY(%s) AS affected_services,
    ARRAY(%s) AS affected_regions,
    TIMESTAMP '%s' AS start_time,
    %s AS end_time,
    TIMESTAMP '%s' AS last_update_time,
    '%s' AS updates_json,
    '%s' AS source_url,
    '%s' AS raw_data_path,
    CURRENT_TIMESTAMP() AS ingestion_timestamp
) AS source
ON target.incident_id = source.incident_id
WHEN MATCHED THEN UPDATE SET
  status = source.status,
  description = source.description,
  end_time = source.end_time,
  last_update_time = source.last_update_time,
  updates_json = source.updates_json,
  ingestion_timestamp = source.ingestion_timestamp
WHEN NOT MATCHED THEN INSERT (
  incident_id, source_system, incident_type, severity, status,
  title, description, affected_services, affected_regions,
  start_time, end_time, last_update_time, updates_json,
  source_url, raw_data_path, ingestion_timestamp
) VALUES (
  source.incident_id, source.source_system, source.incident_type,
  source.severity, source.status, source.title, source.description,
  source.affected_services, source.affected_regions, source.start_time,
  source.end_time, source.last_update_time, source.updates_json,
  source.source_url, source.raw_data_path, source.ingestion_timestamp
)`,
		r.catalogSchema,
		warehouse.EscapeString(incident.IncidentID),
		warehouse.EscapeString(incident.SourceSystem),
		warehouse.EscapeString(string(incident.IncidentType)),
		warehouse.EscapeString(string(incident.Severity)),
		warehouse.EscapeString(string(incident.Status)),
		warehouse.EscapeString(incident.Title),
		warehouse.EscapeString(incident.Description),
		warehouse.QuotedList(services),
		warehouse.QuotedList(regions),
		startTS,
		endExpr,
		lastUpdateTS,
		warehouse.EscapeString(string(updatesJSON)),
		warehouse.EscapeString(incident.SourceURL),
		warehouse.EscapeString(incident.RawDataPath),
	)

	if _, err := r.gw.Execute(ctx, query); err != nil {
		return fmt.Errorf("upsert incident %s: %w", incident.IncidentID, err)
	}
	return nil
}

// RecordAnalysis appends one audit-trail row for a completed analysis.
func (r *WarehouseRepo) RecordAnalysis(ctx context.Context, reportID, runID string, confidence models.Confidence) error {
	query := fmt.Sprintf(`INSERT INTO %s.rca_audit (report_id, run_id, confidence, created_at)
VALUES ('%s', '%s', '%s', CURRENT_TIMESTAMP())`,
		r.catalogSchema,
		warehouse.EscapeString(reportID),
		warehouse.EscapeString(runID),
		warehouse.EscapeString(string(confidence)),
	)
	if _, err := r.gw.Execute(ctx, query); err != nil {
		return fmt.Errorf("record analysis %s: %w", reportID, err)
	}
	return nil
}

func decodeIncident(row warehouse.Record) models.PlatformIncident {
	incident := models.PlatformIncident{
		IncidentID:       stringField(row, "incident_id"),
		SourceSystem:     stringField(row, "source_system"),
		IncidentType:     models.IncidentType(stringField(row, "incident_type")),
		Severity:         models.IncidentSeverity(stringField(row, "severity")),
		Status:           models.IncidentStatus(stringField(row, "status")),
		Title:            stringField(row, "title"),
		Description:      stringField(row, "description"),
		AffectedServices: stringSliceField(row, "affected_services"),
		AffectedRegions:  stringSliceField(row, "affected_regions"),
		StartTime:        timeField(row, "start_time"),
		LastUpdateTime:   timeField(row, "last_update_time"),
		SourceURL:        stringField(row, "source_url"),
		RawDataPath:      stringField(row, "raw_data_path"),
	}
	if end := timeField(row, "end_time"); !end.IsZero() {
		incident.EndTime = &end
	}
	if raw := stringField(row, "updates_json"); raw != "" {
		var updates []models.IncidentUpdate
		if err := json.Unmarshal([]byte(raw), &updates); err == nil {
			incident.Updates = updates
		}
	}
	return incident
}

func stringField(row warehouse.Record, key string) string {
	switch v := row[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intField(row warehouse.Record, key string) int {
	switch v := row[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func timeField(row warehouse.Record, key string) time.Time {
	raw := stringField(row, key)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// stringSliceField decodes array columns, which arrive either as JSON array
// text or as a bracketed display string.
func stringSliceField(row warehouse.Record, key string) []string {
	switch v := row[key].(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		var parsed []string
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
		trimmed = strings.Trim(trimmed, "[]")
		if trimmed == "" {
			return nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
		}
		return out
	default:
		return nil
	}
}
