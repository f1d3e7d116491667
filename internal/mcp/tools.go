package mcp

import "github.com/mark3labs/mcp-go/mcp"

var filterOptions = []mcp.ToolOption{
	mcp.WithString("author", mcp.Description("Case-insensitive substring of the author name")),
	mcp.WithString("date_from", mcp.Description("Saved on or after (RFC 3339 or YYYY-MM-DD)")),
	mcp.WithString("date_to", mcp.Description("Saved on or before (RFC 3339 or YYYY-MM-DD)")),
	mcp.WithBoolean("has_media", mcp.Description("Only records with media")),
}

func withFilters(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append(opts, filterOptions...)
}

var ingestToolDef = mcp.NewTool("record_ingest",
	mcp.WithDescription("Sanitize and store scraped records. Duplicates are skipped; over the rate limit records are queued."),
	mcp.WithArray("records", mcp.Required(),
		mcp.Description("Raw records: id, title, text, url, postUrl, author{name,title,profileUrl,avatar}, media[], engagement{}, timestamp, scrapedAt"),
		mcp.Items(map[string]any{"type": "object"})),
)

var queryToolDef = mcp.NewTool("record_query", withFilters(
	mcp.WithDescription("List stored records newest first"),
	mcp.WithNumber("page", mcp.Description("1-based page, default 1")),
	mcp.WithNumber("limit", mcp.Description("Page size, default 50, max 500")),
)...)

var searchToolDef = mcp.NewTool("record_search", withFilters(
	mcp.WithDescription("Search title, text and author name. Title matches rank first."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Case-insensitive substring")),
)...)

var getToolDef = mcp.NewTool("record_get",
	mcp.WithDescription("Fetch one record by id"),
	mcp.WithString("id", mcp.Required()),
)

var deleteToolDef = mcp.NewTool("record_delete",
	mcp.WithDescription("Delete one record by id"),
	mcp.WithString("id", mcp.Required()),
	mcp.WithDestructiveHintAnnotation(true),
)

var statsToolDef = mcp.NewTool("record_stats",
	mcp.WithDescription("Record counts by age, media and authors, plus storage size"),
)

var settingsGetToolDef = mcp.NewTool("settings_get",
	mcp.WithDescription("Show the storage policy"),
)

var settingsUpdateToolDef = mcp.NewTool("settings_update",
	mcp.WithDescription("Change the storage policy. Omitted fields are unchanged."),
	mcp.WithNumber("max_records", mcp.Description("Oldest records are evicted beyond this count")),
	mcp.WithBoolean("auto_cleanup", mcp.Description("Remove records older than cleanup_days on every save")),
	mcp.WithNumber("cleanup_days"),
	mcp.WithNumber("warning_threshold", mcp.Description("Fraction of capacity, 0 < warning < critical")),
	mcp.WithNumber("critical_threshold", mcp.Description("Fraction of capacity, at most 1")),
	mcp.WithBoolean("save_videos"),
	mcp.WithBoolean("enable_notifications"),
)

var exportToolDef = mcp.NewTool("record_export",
	mcp.WithDescription("Write every record to a JSON envelope file"),
	mcp.WithString("path", mcp.Description("Target .json file; default is the exports directory")),
	mcp.WithBoolean("inline", mcp.Description("Return the envelope instead of writing a file")),
)

var importToolDef = mcp.NewTool("record_import",
	mcp.WithDescription("Merge an export envelope into the store. Existing ids are kept."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Envelope .json file")),
)

var cleanupToolDef = mcp.NewTool("record_cleanup",
	mcp.WithDescription("Remove records by age, or the oldest batch"),
	mcp.WithString("strategy", mcp.Enum("age", "moderate", "aggressive"), mcp.Description("Default moderate")),
	mcp.WithNumber("days", mcp.Description("Age strategy only; default cleanup_days")),
	mcp.WithDestructiveHintAnnotation(true),
)

var clearAllToolDef = mcp.NewTool("record_clear_all",
	mcp.WithDescription("Delete every record and reset settings"),
	mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	mcp.WithDestructiveHintAnnotation(true),
)

var quotaStatusToolDef = mcp.NewTool("quota_status",
	mcp.WithDescription("Storage usage against estimated capacity, and admission queue state"),
	mcp.WithBoolean("refresh", mcp.Description("Measure now instead of returning the last check")),
)

var optimizeToolDef = mcp.NewTool("record_optimize",
	mcp.WithDescription("Shrink stored records: long text is cut and media capped"),
)

var eventListToolDef = mcp.NewTool("event_list",
	mcp.WithDescription("Recent storage events, newest first"),
	mcp.WithNumber("limit", mcp.Description("Default all (at most 100 are kept)")),
)
