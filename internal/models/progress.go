package models

// Analysis progress states.
const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
	ProgressError      = "error"
)

// AnalysisProgress reports where a running enrichment analysis currently is.
// Transient, in-memory only; acceptable to lose on process restart.
type AnalysisProgress struct {
	Status     string `json:"status"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
	Message    string `json:"message"`
}
