package record

import (
	"strings"
	"unicode/utf8"
)

// Optimizer limits applied by Optimize.
const (
	OptimizeMaxText  = 5000
	OptimizeMaxMedia = 3

	optimizeMarker = "... [truncated for storage]"
)

// Optimize shrinks r in place: long text is cut, media is capped and empty
// optional fields are dropped. It reports whether anything changed.
func (r *Record) Optimize() bool {
	changed := false

	if utf8.RuneCountInString(r.Text) > OptimizeMaxText && !alreadyCut(r.Text) {
		r.Text = string([]rune(r.Text)[:OptimizeMaxText]) + optimizeMarker
		changed = true
	}

	if len(r.Media) > OptimizeMaxMedia {
		r.Media = r.Media[:OptimizeMaxMedia]
		changed = true
	}
	if r.Media != nil && len(r.Media) == 0 {
		r.Media = nil
		changed = true
	}

	if r.Engagement != nil && r.Engagement.IsZero() {
		r.Engagement = nil
		changed = true
	}

	if changed {
		r.Optimized = true
	}
	return changed
}

// alreadyCut reports whether text is exactly the output of an earlier Optimize.
func alreadyCut(text string) bool {
	return strings.HasSuffix(text, optimizeMarker) &&
		utf8.RuneCountInString(text) == OptimizeMaxText+utf8.RuneCountInString(optimizeMarker)
}
