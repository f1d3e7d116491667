package record

// ExportVersion is the envelope format version.
const ExportVersion = "1.0"

// ExportMetadata describes how an export was produced.
type ExportMetadata struct {
	SanitizationVersion string `json:"sanitizationVersion"`
	AppVersion          string `json:"appVersion,omitempty"`
}

// Envelope is the export/import file format. Posts is keyed by record id.
type Envelope struct {
	Version        string             `json:"version"`
	ExportDate     string             `json:"exportDate"`
	PostsCount     int                `json:"postsCount"`
	SkippedCount   int                `json:"skippedCount"`
	Posts          map[string]*Record `json:"posts"`
	ExportMetadata ExportMetadata     `json:"exportMetadata"`
}

// ImportEnvelope is the loosely typed form accepted on import. Posts stays
// untyped so every entry can be run back through the sanitizer independently
// and a malformed entry costs only itself.
type ImportEnvelope struct {
	Version    string         `json:"version,omitempty"`
	ExportDate string         `json:"exportDate,omitempty"`
	Posts      map[string]any `json:"posts"`
}
