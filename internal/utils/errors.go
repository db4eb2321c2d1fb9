package utils

import (
	"fmt"
	"time"
)

// JobNotFoundError reports that a requested run does not exist or is not in
// a failed state. Fatal for the analysis, surfaced to the caller.
type JobNotFoundError struct {
	RunID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job run %s not found or did not fail", e.RunID)
}

// QueryExecutionError wraps an upstream statement failure reported by the
// warehouse, carrying the remote state and error message.
type QueryExecutionError struct {
	State   string
	Message string
}

func (e *QueryExecutionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("statement %s: unknown error", e.State)
	}
	return fmt.Sprintf("statement %s: %s", e.State, e.Message)
}

// QueryTimeoutError reports that a statement was still pending or running
// when the wait budget was exhausted. Terminal, not a retry trigger.
type QueryTimeoutError struct {
	Budget time.Duration
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("statement execution timed out after %s", e.Budget)
}

// ArchiveWriteError reports a failed raw-snapshot archive write for one
// scraper source. Isolated per source; sibling sources keep running.
type ArchiveWriteError struct {
	Source string
	Err    error
}

func (e *ArchiveWriteError) Error() string {
	return fmt.Sprintf("archive write for %s failed: %v", e.Source, e.Err)
}

func (e *ArchiveWriteError) Unwrap() error {
	return e.Err
}
