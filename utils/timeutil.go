package utils

import (
	"fmt"
	"strings"
	"time"
)

// Source timestamps arrive in a handful of shapes depending on the upstream
// version. All of them are normalized into UTC unix seconds before they are
// compared with or stored as cursors; comparing strings carrying mixed offsets
// silently drops updates.
var sourceTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseSourceTimestamp parses an upstream timestamp string into UTC unix
// seconds. Offset-less timestamps are taken as already being in UTC, which is
// the reference frame cursors are stored in.
func ParseSourceTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	for _, layout := range sourceTimestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC().Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// FormatCursorTimestamp renders a stored cursor value in the shape the
// upstream's updated-after filter expects (UTC, no offset suffix).
func FormatCursorTimestamp(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02T15:04:05")
}
