package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/hpungsan/feedvault/internal/record"
)

// maxCleanPasses bounds the strip loop; real input settles in two or three.
const maxCleanPasses = 8

var (
	// tagLike catches anything the HTML tokenizer left behind, such as
	// markup that only appeared after entity decoding.
	tagLike = regexp.MustCompile(`<[A-Za-z/!?][^>]*>`)

	// danglingScript catches an unterminated script tag.
	danglingScript = regexp.MustCompile(`(?i)<\s*/?\s*script`)

	dangerousScheme = regexp.MustCompile(`(?i)(javascript|vbscript|data):`)
)

// cleanText returns the markup-free, single-spaced form of v truncated to max
// runes. Non-strings become "". max <= 0 disables truncation.
func (s *Sanitizer) cleanText(v any, max int) string {
	str, ok := v.(string)
	if !ok || str == "" {
		return ""
	}

	// Control and zero-width characters go first and again after every
	// decode, so they cannot split a tag or scheme that is rejoined later.
	// The tokenizer pass runs until stable so markup revealed by entity
	// decoding is stripped along with its content. The regex fallbacks run
	// only on tokenizer-stable text.
	str = stripControl(str)
	for range maxCleanPasses {
		next := stripControl(html.UnescapeString(s.policy.Sanitize(str)))
		if next == str {
			next = stripFallback(next)
			if next == str {
				break
			}
		}
		str = next
	}
	str = stripFallback(stripControl(str))
	str = strings.Join(strings.Fields(str), " ")

	return strings.TrimSpace(record.Truncate(str, max, "..."))
}

func stripFallback(s string) string {
	s = tagLike.ReplaceAllString(s, " ")
	s = danglingScript.ReplaceAllString(s, "")
	return dangerousScheme.ReplaceAllString(s, "")
}

// stripControl turns tab, newline and carriage return into spaces and drops
// other control and zero-width characters.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case r < 0x20 || (r >= 0x7F && r <= 0x9F):
			return -1
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\u2060' || r == '\uFEFF':
			return -1
		}
		return r
	}, s)
}
