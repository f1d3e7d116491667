// Package command is the single dispatch point shared by the MCP tools, the
// HTTP API and the CLI. Every operation is one of a closed set of command
// types; Dispatcher.Dispatch switches over them exhaustively.
package command

import (
	"github.com/hpungsan/feedvault/internal/record"
	"github.com/hpungsan/feedvault/internal/settings"
	"github.com/hpungsan/feedvault/internal/store"
)

// Command is implemented only by the types in this package.
type Command interface {
	Name() string
	command()
}

// Ingest runs raw records through the pipeline.
type Ingest struct {
	Records []record.RawRecord `json:"records"`
}

// Get fetches one record by id.
type Get struct {
	ID string `json:"id"`
}

// Query lists records newest first.
type Query struct {
	store.QueryInput
}

// Search matches records by substring.
type Search struct {
	store.SearchInput
}

// Delete removes one record by id.
type Delete struct {
	ID string `json:"id"`
}

// Stats summarizes the store.
type Stats struct{}

// GetSettings returns the current storage policy.
type GetSettings struct{}

// UpdateSettings applies a partial settings update.
type UpdateSettings struct {
	Delta settings.Delta `json:"delta"`
}

// Export writes every record to an envelope file. An empty Path writes to the
// default exports directory. Inline skips the file and returns the envelope.
type Export struct {
	Path   string `json:"path,omitempty"`
	Inline bool   `json:"inline,omitempty"`
}

// Import merges an envelope into the store, read from Path unless Data is set.
type Import struct {
	Path string `json:"path,omitempty"`
	Data []byte `json:"-"`
}

// Cleanup removes records with the named strategy. Days applies to the age
// strategy only; zero means the cleanupDays setting.
type Cleanup struct {
	Strategy string `json:"strategy"`
	Days     int    `json:"days,omitempty"`
}

// ClearAll removes every record and resets settings.
type ClearAll struct{}

// QuotaStatus reports the last quota snapshot, checking first when Refresh is
// set or no check has run yet.
type QuotaStatus struct {
	Refresh bool `json:"refresh,omitempty"`
}

// Optimize shrinks every stored record.
type Optimize struct{}

// Events lists the event log newest first. Limit <= 0 lists everything.
type Events struct {
	Limit int `json:"limit,omitempty"`
}

func (Ingest) Name() string         { return "ingest" }
func (Get) Name() string            { return "get" }
func (Query) Name() string          { return "query" }
func (Search) Name() string         { return "search" }
func (Delete) Name() string         { return "delete" }
func (Stats) Name() string          { return "stats" }
func (GetSettings) Name() string    { return "get_settings" }
func (UpdateSettings) Name() string { return "update_settings" }
func (Export) Name() string         { return "export" }
func (Import) Name() string         { return "import" }
func (Cleanup) Name() string        { return "cleanup" }
func (ClearAll) Name() string       { return "clear_all" }
func (QuotaStatus) Name() string    { return "quota_status" }
func (Optimize) Name() string       { return "optimize" }
func (Events) Name() string         { return "events" }

func (Ingest) command()         {}
func (Get) command()            {}
func (Query) command()          {}
func (Search) command()         {}
func (Delete) command()         {}
func (Stats) command()          {}
func (GetSettings) command()    {}
func (UpdateSettings) command() {}
func (Export) command()         {}
func (Import) command()         {}
func (Cleanup) command()        {}
func (ClearAll) command()       {}
func (QuotaStatus) command()    {}
func (Optimize) command()       {}
func (Events) command()         {}
