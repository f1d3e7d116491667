package sanitize

import (
	"strings"
	"time"
)

// acceptedLayouts are tried in order when parsing string timestamps.
var acceptedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// cleanTime normalizes a timestamp (string or unix milliseconds) to UTC
// TimeLayout. Timestamps more than FutureTolerance ahead become now.
// Unparseable input becomes "".
func (s *Sanitizer) cleanTime(v any) string {
	var t time.Time
	switch x := v.(type) {
	case string:
		parsed, ok := parseTime(strings.TrimSpace(x))
		if !ok {
			return ""
		}
		t = parsed
	case float64:
		t = time.UnixMilli(int64(x))
	case int64:
		t = time.UnixMilli(x)
	case int:
		t = time.UnixMilli(int64(x))
	default:
		return ""
	}

	now := s.now()
	if t.After(now.Add(FutureTolerance)) {
		t = now
	}
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
