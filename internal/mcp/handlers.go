package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/feedvault/internal/command"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
	"github.com/hpungsan/feedvault/internal/settings"
	"github.com/hpungsan/feedvault/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	d *command.Dispatcher
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d *command.Dispatcher) *Handlers {
	return &Handlers{d: d}
}

// Request types for each tool

// IngestRequest represents the arguments for record_ingest. Entries stay
// untyped so a non-object entry is rejected on its own.
type IngestRequest struct {
	Records []any `json:"records"`
}

// FilterArgs are the filters shared by query and search.
type FilterArgs struct {
	Author   string `json:"author,omitempty"`
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
	HasMedia bool   `json:"has_media,omitempty"`
}

func (f FilterArgs) parse() (store.Filters, error) {
	return command.ParseFilters(f.Author, f.DateFrom, f.DateTo, f.HasMedia)
}

// QueryRequest represents the arguments for record_query.
type QueryRequest struct {
	FilterArgs
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// SearchRequest represents the arguments for record_search.
type SearchRequest struct {
	FilterArgs
	Query string `json:"query"`
}

// IDRequest represents the arguments for record_get and record_delete.
type IDRequest struct {
	ID string `json:"id"`
}

// SettingsUpdateRequest represents the arguments for settings_update.
type SettingsUpdateRequest struct {
	MaxRecords          *int     `json:"max_records,omitempty"`
	AutoCleanup         *bool    `json:"auto_cleanup,omitempty"`
	CleanupDays         *int     `json:"cleanup_days,omitempty"`
	WarningThreshold    *float64 `json:"warning_threshold,omitempty"`
	CriticalThreshold   *float64 `json:"critical_threshold,omitempty"`
	SaveVideos          *bool    `json:"save_videos,omitempty"`
	EnableNotifications *bool    `json:"enable_notifications,omitempty"`
}

// ExportRequest represents the arguments for record_export.
type ExportRequest struct {
	Path   string `json:"path,omitempty"`
	Inline bool   `json:"inline,omitempty"`
}

// ImportRequest represents the arguments for record_import.
type ImportRequest struct {
	Path string `json:"path"`
}

// CleanupRequest represents the arguments for record_cleanup.
type CleanupRequest struct {
	Strategy string `json:"strategy,omitempty"`
	Days     int    `json:"days,omitempty"`
}

// ClearAllRequest represents the arguments for record_clear_all.
type ClearAllRequest struct {
	Confirm bool `json:"confirm"`
}

// QuotaStatusRequest represents the arguments for quota_status.
type QuotaStatusRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

// EventListRequest represents the arguments for event_list.
type EventListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// Handler implementations

// HandleIngest handles the record_ingest tool call.
func (h *Handlers) HandleIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IngestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	raws := make([]record.RawRecord, len(input.Records))
	for i, v := range input.Records {
		if m, ok := v.(map[string]any); ok {
			raws[i] = m
		}
	}
	return h.dispatch(ctx, command.Ingest{Records: raws})
}

// HandleQuery handles the record_query tool call.
func (h *Handlers) HandleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QueryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	filters, err := input.parse()
	if err != nil {
		return errorResult(err), nil
	}

	return h.dispatch(ctx, command.Query{QueryInput: store.QueryInput{
		Filters: filters,
		Page:    input.Page,
		Limit:   input.Limit,
	}})
}

// HandleSearch handles the record_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	filters, err := input.parse()
	if err != nil {
		return errorResult(err), nil
	}

	return h.dispatch(ctx, command.Search{SearchInput: store.SearchInput{Query: input.Query, Filters: filters}})
}

// HandleGet handles the record_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.dispatch(ctx, command.Get{ID: input.ID})
}

// HandleDelete handles the record_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.dispatch(ctx, command.Delete{ID: input.ID})
}

// HandleStats handles the record_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.dispatch(ctx, command.Stats{})
}

// HandleSettingsGet handles the settings_get tool call.
func (h *Handlers) HandleSettingsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.dispatch(ctx, command.GetSettings{})
}

// HandleSettingsUpdate handles the settings_update tool call.
func (h *Handlers) HandleSettingsUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.dispatch(ctx, command.UpdateSettings{Delta: settings.Delta{
		MaxRecords:          input.MaxRecords,
		AutoCleanup:         input.AutoCleanup,
		CleanupDays:         input.CleanupDays,
		WarningThreshold:    input.WarningThreshold,
		CriticalThreshold:   input.CriticalThreshold,
		SaveVideos:          input.SaveVideos,
		EnableNotifications: input.EnableNotifications,
	}})
}

// HandleExport handles the record_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.dispatch(ctx, command.Export{Path: input.Path, Inline: input.Inline})
}

// HandleImport handles the record_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.dispatch(ctx, command.Import{Path: input.Path})
}

// HandleCleanup handles the record_cleanup tool call.
func (h *Handlers) HandleCleanup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CleanupRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.dispatch(ctx, command.Cleanup{Strategy: input.Strategy, Days: input.Days})
}

// HandleClearAll handles the record_clear_all tool call.
func (h *Handlers) HandleClearAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClearAllRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if !input.Confirm {
		return errorResult(errors.NewInvalidRequest("confirm must be true")), nil
	}
	return h.dispatch(ctx, command.ClearAll{})
}

// HandleQuotaStatus handles the quota_status tool call.
func (h *Handlers) HandleQuotaStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QuotaStatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.dispatch(ctx, command.QuotaStatus{Refresh: input.Refresh})
}

// HandleOptimize handles the record_optimize tool call.
func (h *Handlers) HandleOptimize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.dispatch(ctx, command.Optimize{})
}

// HandleEventList handles the event_list tool call.
func (h *Handlers) HandleEventList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EventListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.dispatch(ctx, command.Events{Limit: input.Limit})
}

func (h *Handlers) dispatch(ctx context.Context, cmd command.Command) (*mcp.CallToolResult, error) {
	out, err := h.d.Dispatch(ctx, cmd)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed; they may carry paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if vErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    vErr.Code,
			"message": messageWithContext(err, vErr),
			"status":  vErr.Status,
		}
		if vErr.Code != errors.ErrInternal && vErr.Details != nil {
			errorObj["details"] = vErr.Details
		}
		if vErr.Code == errors.ErrInternal || vErr.Code == errors.ErrStoreIO {
			errorObj["message"] = "an internal error occurred"
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// messageWithContext keeps any fmt.Errorf prefixes wrapped around vErr.
func messageWithContext(err error, vErr *errors.VaultError) string {
	full := err.Error()
	if prefix, ok := strings.CutSuffix(full, vErr.Error()); ok && prefix != "" {
		return prefix + vErr.Message
	}
	return vErr.Message
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
