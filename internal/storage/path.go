package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// TranscriptSuffix is the file extension of archived transcripts.
const TranscriptSuffix = ".parquet"

// BuildTranscriptPath lays transcripts out by the UTC day the session ended:
// <prefix>/date=YYYY-MM-DD/<session-id>.parquet.
func BuildTranscriptPath(prefix, sessionID string, endedAt time.Time) (string, error) {
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	for _, component := range strings.Split(prefix, "/") {
		if component == "" {
			continue
		}
		if err := validatePathComponent(component, "archive prefix"); err != nil {
			return "", err
		}
	}

	ts := endedAt.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		sessionID+TranscriptSuffix,
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
