// Package sanitize turns untrusted raw records into canonical records.
//
// Sanitize is the content stage: it rebuilds a Record field by field from a
// RawRecord. Guard is the storage stage, run again just before a write, and
// ForExport produces the export-safe subset of a stored record.
package sanitize

import (
	"crypto/rand"
	"math"
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
)

// Per-field length limits, in runes.
const (
	MaxIDLen         = 200
	MaxTitleLen      = 500
	MaxTextLen       = 10000
	MaxAuthorNameLen = 200
	MaxAltLen        = 300
	MaxURLLen        = 2000

	// MaxMediaItems is how many raw media entries are considered.
	MaxMediaItems = 10

	// MaxEngagement caps each engagement counter.
	MaxEngagement = 1e9

	// ContentStageLimit and StorageStageLimit bound the serialized record size.
	ContentStageLimit = 100 * 1000
	StorageStageLimit = 150 * 1000

	// FutureTolerance is how far ahead a timestamp may be before it is clamped.
	FutureTolerance = time.Hour

	// TimeLayout matches the millisecond ISO form used in exports.
	TimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Rejection reasons.
const (
	ReasonNotObject  = "record is not an object"
	ReasonMissingID  = "missing id and no content to derive one from"
	ReasonInvalidID  = "id has no usable characters"
	ReasonNoContent  = "no title, text, author name or post url"
	ReasonUnsafe     = "unsafe content could not be neutralized"
	ReasonMissingKey = "missing id or savedAt"
)

var idStrip = regexp.MustCompile(`[^A-Za-z0-9_:\-]`)

// Sanitizer holds the immutable policy used by every stage.
// It is safe for concurrent use.
type Sanitizer struct {
	allowedHosts []string
	policy       *bluemonday.Policy
	now          func() time.Time
}

// New creates a Sanitizer that keeps URLs on the given hosts and their subdomains.
func New(allowedHosts []string) *Sanitizer {
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = normalizeHost(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Sanitizer{
		allowedHosts: hosts,
		policy:       bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true),
		now:          time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Sanitizer) WithClock(now func() time.Time) *Sanitizer {
	s.now = now
	return s
}

// Sanitize rebuilds a Record from raw. A rejection is a SANITIZATION_REJECTED error.
func (s *Sanitizer) Sanitize(raw record.RawRecord) (*record.Record, error) {
	if raw == nil {
		return nil, errors.NewSanitizationRejected(ReasonNotObject)
	}

	rec := &record.Record{
		Title:     s.cleanText(raw["title"], MaxTitleLen),
		Text:      s.cleanText(raw["text"], MaxTextLen),
		URL:       s.cleanURL(raw["url"]),
		PostURL:   s.cleanURL(raw["postUrl"]),
		Timestamp: s.cleanTime(raw["timestamp"]),
		ScrapedAt: s.cleanTime(raw["scrapedAt"]),
		SavedAt:   s.cleanTime(raw["savedAt"]),
	}

	if a, ok := raw["author"].(map[string]any); ok {
		rec.Author = s.cleanAuthor(a)
	}
	if m, ok := raw["media"].([]any); ok {
		rec.Media = s.cleanMedia(m)
	}
	if e, ok := raw["engagement"].(map[string]any); ok {
		rec.Engagement = cleanEngagement(e)
	}

	id, err := s.cleanID(raw, rec)
	if err != nil {
		return nil, err
	}
	rec.ID = id

	if !rec.HasContent() {
		return nil, errors.NewSanitizationRejected(ReasonNoContent)
	}

	rec.SanitizedAt = s.now().UTC().Format(TimeLayout)
	rec.SanitizationVersion = record.SanitizationVersion

	if record.Size(rec) > ContentStageLimit {
		shrink(rec, "... [truncated]")
	}
	return rec, nil
}

// cleanID keeps the allowed id characters, synthesizing an id when none was
// supplied but the record has content.
func (s *Sanitizer) cleanID(raw record.RawRecord, rec *record.Record) (string, error) {
	rawID, present := raw["id"]
	str, isString := rawID.(string)

	if !present || rawID == nil || (isString && str == "") {
		if !rec.HasContent() {
			return "", errors.NewSanitizationRejected(ReasonMissingID)
		}
		return s.generateID(), nil
	}
	if !isString {
		return "", errors.NewSanitizationRejected(ReasonInvalidID)
	}

	id := record.Truncate(idStrip.ReplaceAllString(str, ""), MaxIDLen, "")
	if id == "" {
		return "", errors.NewSanitizationRejected(ReasonInvalidID)
	}
	return id, nil
}

func (s *Sanitizer) generateID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return "generated-" + ulid.MustNew(ulid.Timestamp(s.now()), entropy).String()
}

func (s *Sanitizer) cleanAuthor(a map[string]any) record.Author {
	return record.Author{
		Name:       s.cleanText(a["name"], MaxAuthorNameLen),
		Title:      s.cleanText(a["title"], MaxTitleLen),
		ProfileURL: s.cleanURL(a["profileUrl"]),
		Avatar:     s.cleanURL(a["avatar"]),
	}
}

func (s *Sanitizer) cleanMedia(items []any) []record.Media {
	if len(items) > MaxMediaItems {
		items = items[:MaxMediaItems]
	}
	var out []record.Media
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["type"].(string)
		if typ != record.MediaImage && typ != record.MediaVideo {
			continue
		}
		u := s.cleanURL(m["url"])
		if u == "" {
			continue
		}
		out = append(out, record.Media{
			Type:   typ,
			URL:    u,
			Alt:    s.cleanText(m["alt"], MaxAltLen),
			Poster: s.cleanURL(m["poster"]),
		})
	}
	return out
}

func cleanEngagement(e map[string]any) *record.Engagement {
	return &record.Engagement{
		Likes:    cleanCount(e["likes"]),
		Comments: cleanCount(e["comments"]),
		Shares:   cleanCount(e["shares"]),
	}
}

// cleanCount accepts numbers in [0, 1e9] and floors them; anything else is 0.
func cleanCount(v any) int64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0
	}
	if math.IsNaN(f) || f < 0 || f > MaxEngagement {
		return 0
	}
	return int64(math.Floor(f))
}

// shrink caps the fields that dominate record size.
func shrink(rec *record.Record, textMarker string) {
	if record.CountChars(rec.Text) > 5000 {
		rec.Text = string([]rune(rec.Text)[:5000]) + textMarker
	}
	if record.CountChars(rec.Title) > 200 {
		rec.Title = string([]rune(rec.Title)[:200]) + "..."
	}
	if len(rec.Media) > 5 {
		rec.Media = rec.Media[:5]
	}
}
