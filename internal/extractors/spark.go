package extractors

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

// SparkLogExtractor normalizes heterogeneous per-task failure events into
// SparkError records. Extraction is best effort: a malformed event yields no
// record and never aborts the remaining events.
type SparkLogExtractor struct{}

func NewSparkLogExtractor() *SparkLogExtractor {
	return &SparkLogExtractor{}
}

var (
	exceptionPattern = regexp.MustCompile(`([A-Za-z.]+Exception):\s*([^\n]+)`)
	stackLinePattern = regexp.MustCompile(`\n\s*at\s+[^\n]+`)
	errorLogPattern  = regexp.MustCompile(`ERROR\s+(.+?):\s*(.+)`)
)

// Extract walks the event sequence in order and returns one SparkError per
// event that yielded a match.
func (e *SparkLogExtractor) Extract(events []models.TaskRunEvent) []models.SparkError {
	var errors []models.SparkError

	for _, event := range events {
		if event.EventDetails == "" {
			continue
		}

		taskKey := event.TaskKey
		if taskKey == "" {
			taskKey = "unknown"
		}
		ts := eventTimestamp(event)

		var details map[string]any
		if err := json.Unmarshal([]byte(event.EventDetails), &details); err == nil {
			if found, ok := extractStructured(details); ok {
				found.TaskKey = taskKey
				found.Timestamp = ts
				errors = append(errors, found)
				continue
			}
			if event.TerminationCode != "" {
				if mapped, ok := mapTerminationCode(event.TerminationCode); ok {
					mapped.TaskKey = taskKey
					mapped.Timestamp = ts
					errors = append(errors, mapped)
				}
			}
			continue
		}

		// Not JSON: fall back to plain-text pattern extraction.
		if found, ok := extractFromText(event.EventDetails); ok {
			found.TaskKey = taskKey
			found.Timestamp = ts
			errors = append(errors, found)
		}
	}

	return errors
}

func eventTimestamp(event models.TaskRunEvent) *time.Time {
	if !event.PeriodEndTime.IsZero() {
		t := event.PeriodEndTime
		return &t
	}
	if !event.PeriodStartTime.IsZero() {
		t := event.PeriodStartTime
		return &t
	}
	return nil
}

// extractStructured checks known payload fields in priority order. The first
// match wins and extraction stops for the event.
func extractStructured(details map[string]any) (models.SparkError, bool) {
	if raw, ok := details["error"]; ok && raw != nil {
		obj, _ := raw.(map[string]any)
		return models.SparkError{
			ErrorType:    firstString(obj, "type", "exception_class", "Spark Error"),
			ErrorMessage: firstStringOr(obj, raw, "message", "description"),
			StackTrace:   anyString(obj, "stack_trace", "stackTrace"),
		}, true
	}

	if raw, ok := details["exception"]; ok && raw != nil {
		obj, _ := raw.(map[string]any)
		return models.SparkError{
			ErrorType:    firstString(obj, "class", "", "Spark Exception"),
			ErrorMessage: firstStringOr(obj, raw, "message"),
			StackTrace:   anyString(obj, "stackTrace"),
		}, true
	}

	if reason := anyString(details, "failure_reason"); reason != "" {
		return models.SparkError{ErrorType: "Task Failure", ErrorMessage: reason}, true
	}

	if msg := anyString(details, "error_message"); msg != "" {
		return models.SparkError{ErrorType: "Error", ErrorMessage: msg}, true
	}

	if state := anyString(details, "state_message"); state != "" && strings.Contains(strings.ToLower(state), "error") {
		return models.SparkError{ErrorType: "State Error", ErrorMessage: state}, true
	}

	return models.SparkError{}, false
}

// extractFromText matches `SomeException: message` with optional trailing
// "at ..." stack lines, then plain `ERROR component: message` log lines.
func extractFromText(text string) (models.SparkError, bool) {
	if m := exceptionPattern.FindStringSubmatch(text); m != nil {
		var stack string
		if lines := stackLinePattern.FindAllString(text, -1); lines != nil {
			trimmed := make([]string, 0, len(lines))
			for _, line := range lines {
				trimmed = append(trimmed, strings.TrimLeft(line, "\n"))
			}
			stack = strings.Join(trimmed, "\n")
		}
		return models.SparkError{
			ErrorType:    m[1],
			ErrorMessage: strings.TrimSpace(m[2]),
			StackTrace:   stack,
		}, true
	}

	if m := errorLogPattern.FindStringSubmatch(text); m != nil {
		return models.SparkError{ErrorType: m[1], ErrorMessage: strings.TrimSpace(m[2])}, true
	}

	return models.SparkError{}, false
}

var terminationCodeTable = map[string]models.SparkError{
	"RUN_EXECUTION_ERROR": {
		ErrorType:    "Execution Error",
		ErrorMessage: "The task failed during execution. Check task logs for specific error details.",
	},
	"CLUSTER_ERROR": {
		ErrorType:    "Cluster Error",
		ErrorMessage: "The cluster encountered an error or failed to start properly.",
	},
	"CLOUD_FAILURE": {
		ErrorType:    "Cloud Infrastructure Failure",
		ErrorMessage: "The cloud provider infrastructure encountered an issue.",
	},
	"RESOURCE_LIMIT_EXCEEDED": {
		ErrorType:    "Resource Limit Exceeded",
		ErrorMessage: "The job exceeded resource limits (memory, CPU, or storage).",
	},
	"UNAUTHORIZED": {
		ErrorType:    "Authorization Error",
		ErrorMessage: "The job does not have permission to access required resources.",
	},
	"INVALID_PARAMETER_VALUE": {
		ErrorType:    "Configuration Error",
		ErrorMessage: "Invalid parameter or configuration value provided to the job.",
	},
}

func mapTerminationCode(code string) (models.SparkError, bool) {
	mapped, ok := terminationCodeTable[code]
	return mapped, ok
}

const maxStackTraceChars = 500

// FormatForPrompt renders extracted errors as numbered plain text for the
// enrichment prompt. Stack traces are truncated with an explicit marker.
func FormatForPrompt(errors []models.SparkError) string {
	if len(errors) == 0 {
		return "No specific Spark errors extracted from logs."
	}

	var b strings.Builder
	for i, sparkErr := range errors {
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, sparkErr.ErrorType, sparkErr.ErrorMessage)
		if sparkErr.TaskKey != "" {
			fmt.Fprintf(&b, "\n   Task: %s", sparkErr.TaskKey)
		}
		if sparkErr.Timestamp != nil {
			fmt.Fprintf(&b, "\n   Time: %s", sparkErr.Timestamp.UTC().Format(time.RFC3339))
		}
		if sparkErr.StackTrace != "" {
			stack := sparkErr.StackTrace
			if len(stack) > maxStackTraceChars {
				stack = stack[:maxStackTraceChars] + "...[truncated]"
			}
			fmt.Fprintf(&b, "\n   Stack Trace: %s", stack)
		}
		if i < len(errors)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// firstString returns obj[keys...] as a string, else the final fallback.
func firstString(obj map[string]any, key1, key2, fallback string) string {
	if v := anyString(obj, key1); v != "" {
		return v
	}
	if key2 != "" {
		if v := anyString(obj, key2); v != "" {
			return v
		}
	}
	return fallback
}

// firstStringOr returns the first non-empty string among obj[keys...], else a
// plain rendering of the raw payload value.
func firstStringOr(obj map[string]any, raw any, keys ...string) string {
	for _, key := range keys {
		if v := anyString(obj, key); v != "" {
			return v
		}
	}
	switch v := raw.(type) {
	case string:
		return v
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return fmt.Sprintf("%v", raw)
		}
		return string(data)
	}
}

func anyString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok {
			return v
		}
	}
	return ""
}
