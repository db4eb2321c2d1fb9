package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

// The statement execution protocol has no bind parameters, so every value
// interpolated into query text goes through one of these helpers first.

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)
	timestampPattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
)

// EscapeString doubles embedded single quotes for a SQL string literal.
func EscapeString(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// SafeIdentifier validates a catalog/schema/table identifier against a strict
// allow-list (alphanumeric, underscore, period). Anything else is rejected.
func SafeIdentifier(identifier, name string) (string, error) {
	if !identifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("invalid %s: must contain only alphanumeric characters, underscores, and periods", name)
	}
	return identifier, nil
}

// SafeTimestamp validates an ISO-8601 timestamp shape and escapes it for
// embedding in a TIMESTAMP literal.
func SafeTimestamp(timestamp string) (string, error) {
	if !timestampPattern.MatchString(timestamp) {
		return "", fmt.Errorf("invalid timestamp format: %s", timestamp)
	}
	return EscapeString(timestamp), nil
}

// QuotedList renders a SQL string-literal list from values, escaping each.
func QuotedList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, "'"+EscapeString(v)+"'")
	}
	return strings.Join(quoted, ",")
}
