package models

import "time"

// JobFailure is one timeline row for a failed job run, fetched fresh per
// analysis from system.lakeflow.job_run_timeline.
type JobFailure struct {
	JobID           string    `json:"job_id"`
	RunID           string    `json:"run_id"`
	RunName         string    `json:"run_name"`
	PeriodStartTime time.Time `json:"period_start_time"`
	PeriodEndTime   time.Time `json:"period_end_time"`
	ResultState     string    `json:"result_state"`
	TerminationCode string    `json:"termination_code"`
	TriggerType     string    `json:"trigger_type"`
	ComputeIDs      []string  `json:"compute_ids"`
}

// ClusterInfo is the latest configuration row for a compute cluster.
type ClusterInfo struct {
	ClusterID        string    `json:"cluster_id"`
	ClusterName      string    `json:"cluster_name"`
	State            string    `json:"state"`
	OwnedBy          string    `json:"owned_by"`
	ChangeTime       time.Time `json:"change_time"`
	DriverNodeTypeID string    `json:"driver_node_type_id"`
	NodeTypeID       string    `json:"node_type_id"`
	NumWorkers       int       `json:"num_workers"`
}

// AuditLogEntry is one access-audit row with an error status code.
type AuditLogEntry struct {
	EventTime    time.Time `json:"event_time"`
	UserEmail    string    `json:"user_email"`
	ServiceName  string    `json:"service_name"`
	ActionName   string    `json:"action_name"`
	RequestID    string    `json:"request_id"`
	StatusCode   int       `json:"status_code"`
	ErrorMessage string    `json:"error_message"`
}

// TaskRunEvent is one raw per-task failure event attached to a job run.
// EventDetails may be structured JSON, opaque text, or empty.
type TaskRunEvent struct {
	TaskRunID       string    `json:"task_run_id"`
	TaskKey         string    `json:"task_key"`
	PeriodStartTime time.Time `json:"period_start_time"`
	PeriodEndTime   time.Time `json:"period_end_time"`
	ResultState     string    `json:"result_state"`
	TerminationCode string    `json:"termination_code"`
	EventDetails    string    `json:"event_details"`
}

// SparkError is a normalized error record extracted from task run events.
type SparkError struct {
	ErrorType    string     `json:"error_type"`
	ErrorMessage string     `json:"error_message"`
	StackTrace   string     `json:"stack_trace,omitempty"`
	TaskKey      string     `json:"task_key,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}
