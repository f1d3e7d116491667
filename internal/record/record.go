// Package record defines the sanitized storage unit and the raw candidate
// records handed to the pipeline by extractors.
package record

import "encoding/json"

// SanitizationVersion is stamped on every record that passes the sanitizer.
const SanitizationVersion = "2.0"

// RawRecord is an untrusted key/value bag produced by an extractor.
// The only field the pipeline looks for by name before sanitizing is "id".
type RawRecord map[string]any

// ID returns the raw id if it is a string, or "".
func (r RawRecord) ID() string {
	if s, ok := r["id"].(string); ok {
		return s
	}
	return ""
}

// Author describes who published a record.
type Author struct {
	Name       string `json:"name,omitempty"`
	Title      string `json:"title,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

// IsZero reports whether every author field is empty.
func (a Author) IsZero() bool {
	return a == Author{}
}

// Media types accepted by the sanitizer.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// Media is a single image or video attached to a record.
type Media struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Poster string `json:"poster,omitempty"`
}

// Engagement holds reaction counters, each in [0, 1e9].
type Engagement struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}

// IsZero reports whether all counters are zero.
func (e Engagement) IsZero() bool {
	return e == Engagement{}
}

// Record is the canonical, sanitized unit of storage.
// JSON field names match the export format.
type Record struct {
	// ID is the unique key in the store
	ID string `json:"id"`

	Title   string `json:"title,omitempty"`
	Text    string `json:"text,omitempty"`
	URL     string `json:"url,omitempty"`
	PostURL string `json:"postUrl,omitempty"`

	Author     Author      `json:"author"`
	Media      []Media     `json:"media,omitempty"`
	Engagement *Engagement `json:"engagement,omitempty"`

	// Timestamps are RFC 3339 strings; empty means unknown
	Timestamp string `json:"timestamp,omitempty"`
	ScrapedAt string `json:"scrapedAt,omitempty"`

	// SavedAt is assigned by the store on insert
	SavedAt string `json:"savedAt,omitempty"`

	// Provenance
	SanitizedAt         string `json:"sanitizedAt,omitempty"`
	SanitizationVersion string `json:"sanitizationVersion,omitempty"`
	ImportedAt          string `json:"importedAt,omitempty"`
	ImportSource        string `json:"importSource,omitempty"`

	// Optimized marks records shrunk by the optimizer
	Optimized bool `json:"optimized,omitempty"`
}

// HasMedia reports whether the record carries at least one media item.
func (r *Record) HasMedia() bool {
	return len(r.Media) > 0
}

// HasContent reports whether the record carries anything worth keeping.
func (r *Record) HasContent() bool {
	return r.Title != "" || r.Text != "" || r.Author.Name != "" || r.PostURL != ""
}

// Clone returns a deep copy so callers never share slices with the store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Media != nil {
		c.Media = append([]Media(nil), r.Media...)
	}
	if r.Engagement != nil {
		e := *r.Engagement
		c.Engagement = &e
	}
	return &c
}

// Size returns the serialized size of the record in bytes.
func Size(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
