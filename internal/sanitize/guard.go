package sanitize

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
)

// highRisk patterns are searched for in the serialized record.
var highRisk = []*regexp.Regexp{
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)<\s*/?\s*script`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)new\s+Function\(`),
}

// neutralizers rewrite high-risk text to inert markers. None of the markers
// matches a highRisk pattern.
var neutralizers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)javascript:`), "blocked-js:"},
	{regexp.MustCompile(`(?i)vbscript:`), "blocked-vbs:"},
	{regexp.MustCompile(`(?i)<(\s*/?\s*)script`), "<${1}blocked-script"},
	{regexp.MustCompile(`(?i)eval\(`), "[blocked-eval]("},
	{regexp.MustCompile(`(?i)new\s+Function\(`), "[blocked-function]("},
}

// Guard is the storage-stage check run just before a write. It returns a
// copy of rec with high-risk content neutralized and oversized fields cut.
// rec itself is not modified.
func (s *Sanitizer) Guard(rec *record.Record) (*record.Record, error) {
	if rec == nil || rec.ID == "" {
		return nil, errors.NewSanitizationRejected(ReasonInvalidID)
	}

	data, err := marshalRaw(rec)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	out := rec.Clone()
	if risky(data) {
		for _, n := range neutralizers {
			data = n.re.ReplaceAll(data, []byte(n.repl))
		}
		var reparsed record.Record
		if err := json.Unmarshal(data, &reparsed); err != nil || risky(data) {
			return nil, errors.NewSanitizationRejected(ReasonUnsafe)
		}
		out = &reparsed
	}

	if len(data) > StorageStageLimit {
		shrink(out, "... [truncated]")
	}
	return out, nil
}

// IsRisky reports whether the serialized record matches any high-risk pattern.
func IsRisky(rec *record.Record) bool {
	data, err := marshalRaw(rec)
	if err != nil {
		return false
	}
	return risky(data)
}

func risky(data []byte) bool {
	for _, re := range highRisk {
		if re.Match(data) {
			return true
		}
	}
	return false
}

// marshalRaw encodes v without HTML escaping so '<' is matched literally.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
