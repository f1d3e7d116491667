package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/feedvault/internal/app"
	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/logging"
)

// testSetup opens a full app in a temporary base directory.
func testSetup(t *testing.T) (*app.App, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.QuotaCapacityBytes = 1 << 30
	a, err := app.Open(t.TempDir(), cfg, app.Options{Version: "test", Logger: logging.Discard(), DisableMetrics: true})
	if err != nil {
		t.Fatalf("failed to open app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, cfg
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func post(id, title string) map[string]any {
	return map[string]any{
		"id":     id,
		"title":  title,
		"text":   "Body of " + id,
		"author": map[string]any{"name": "Grace Hopper"},
	}
}

func ingest(t *testing.T, h *Handlers, records ...any) map[string]any {
	t.Helper()
	result, err := h.HandleIngest(context.Background(), makeRequest(map[string]any{"records": records}))
	if err != nil {
		t.Fatalf("HandleIngest: %v", err)
	}
	return parseOutput(t, result)
}

func TestHandleIngest(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)

	out := ingest(t, h,
		post("p1", "<script>alert(1)</script>First"),
		post("p1", "First again"),
		"not an object",
		map[string]any{"id": "empty"},
	)

	if out["accepted"] != float64(1) {
		t.Errorf("accepted = %v, want 1", out["accepted"])
	}
	if out["duplicates"] != float64(1) {
		t.Errorf("duplicates = %v, want 1", out["duplicates"])
	}
	if out["rejected"] != float64(2) {
		t.Errorf("rejected = %v, want 2", out["rejected"])
	}

	result, _ := h.HandleGet(context.Background(), makeRequest(map[string]any{"id": "p1"}))
	rec := parseOutput(t, result)
	if rec["title"] != "First" {
		t.Errorf("title = %q, want %q", rec["title"], "First")
	}
}

func TestHandleIngest_MissingRecords(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)

	result, _ := h.HandleIngest(context.Background(), makeRequest(nil))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))

	result, _ = h.HandleIngest(context.Background(), makeRequest(map[string]any{"records": "nope"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleQueryAndSearch(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)
	ctx := context.Background()

	textMatch := post("q3", "Gamma")
	textMatch["text"] = "mentions alpha in passing"
	ingest(t, h, post("q1", "Alpha"), post("q2", "Beta"), textMatch)

	result, _ := h.HandleQuery(ctx, makeRequest(map[string]any{"limit": 2}))
	page := parseOutput(t, result)
	if page["totalCount"] != float64(3) {
		t.Errorf("totalCount = %v, want 3", page["totalCount"])
	}
	if page["hasMore"] != true {
		t.Errorf("hasMore = %v, want true", page["hasMore"])
	}
	if posts := page["posts"].([]any); len(posts) != 2 {
		t.Errorf("posts = %d, want 2", len(posts))
	}

	result, _ = h.HandleSearch(ctx, makeRequest(map[string]any{"query": "alpha"}))
	found := parseOutput(t, result)
	if found["totalCount"] != float64(2) {
		t.Errorf("search totalCount = %v, want 2", found["totalCount"])
	}
	first := found["posts"].([]any)[0].(map[string]any)
	if first["id"] != "q1" {
		t.Errorf("first match = %v, want q1 (title match)", first["id"])
	}

	result, _ = h.HandleQuery(ctx, makeRequest(map[string]any{"date_from": "last week"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))

	result, _ = h.HandleQuery(ctx, makeRequest(map[string]any{"date_from": "2026-02-01", "date_to": "2026-01-01"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleDelete(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)
	ctx := context.Background()

	ingest(t, h, post("d1", "Doomed"))

	result, _ := h.HandleDelete(ctx, makeRequest(map[string]any{"id": "d1"}))
	out := parseOutput(t, result)
	if out["deleted"] != true {
		t.Errorf("deleted = %v, want true", out["deleted"])
	}

	result, _ = h.HandleDelete(ctx, makeRequest(map[string]any{"id": "d1"}))
	out = parseOutput(t, result)
	if out["deleted"] != false {
		t.Errorf("deleted = %v, want false for a missing id", out["deleted"])
	}

	result, _ = h.HandleGet(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleStats(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)

	ingest(t, h, post("s1", "One"), post("s2", "Two"))

	result, _ := h.HandleStats(context.Background(), makeRequest(nil))
	out := parseOutput(t, result)
	if out["totalPosts"] != float64(2) {
		t.Errorf("totalPosts = %v, want 2", out["totalPosts"])
	}
	if out["uniqueAuthors"] != float64(1) {
		t.Errorf("uniqueAuthors = %v, want 1", out["uniqueAuthors"])
	}
}

func TestHandleSettings(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)
	ctx := context.Background()

	result, _ := h.HandleSettingsGet(ctx, makeRequest(nil))
	out := parseOutput(t, result)
	if out["maxRecords"] != float64(1000) {
		t.Errorf("maxRecords = %v, want 1000", out["maxRecords"])
	}

	result, _ = h.HandleSettingsUpdate(ctx, makeRequest(map[string]any{"max_records": 25, "auto_cleanup": true}))
	out = parseOutput(t, result)
	if out["maxRecords"] != float64(25) || out["autoCleanup"] != true {
		t.Errorf("settings = %v", out)
	}

	result, _ = h.HandleSettingsUpdate(ctx, makeRequest(map[string]any{"warning_threshold": 0.99}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))

	result, _ = h.HandleSettingsUpdate(ctx, makeRequest(nil))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleExportImport(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)
	ctx := context.Background()

	ingest(t, h, post("x1", "Exported"), post("x2", "Also exported"))

	path := filepath.Join(a.BaseDir, "exports", "backup.json")
	result, _ := h.HandleExport(ctx, makeRequest(map[string]any{"path": path}))
	out := parseOutput(t, result)
	if out["postsCount"] != float64(2) {
		t.Errorf("postsCount = %v, want 2", out["postsCount"])
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export file missing: %v", err)
	}

	result, _ = h.HandleClearAll(ctx, makeRequest(map[string]any{"confirm": true}))
	parseOutput(t, result)

	result, _ = h.HandleImport(ctx, makeRequest(map[string]any{"path": path}))
	out = parseOutput(t, result)
	if out["imported"] != float64(2) {
		t.Errorf("imported = %v, want 2", out["imported"])
	}

	// Importing again merges nothing new.
	result, _ = h.HandleImport(ctx, makeRequest(map[string]any{"path": path}))
	out = parseOutput(t, result)
	if out["imported"] != float64(0) || out["skipped"] != float64(2) {
		t.Errorf("second import = %v, want 0 imported / 2 skipped", out)
	}
}

func TestHandleExport_PathValidation(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)
	ctx := context.Background()

	tests := []struct {
		name string
		path string
	}{
		{"traversal", a.BaseDir + "/exports/../escape.json"},
		{"extension", filepath.Join(a.BaseDir, "exports", "backup.txt")},
		{"outside", filepath.Join(t.TempDir(), "backup.json")},
		{"subdirectory", filepath.Join(a.BaseDir, "exports", "nested", "backup.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := h.HandleExport(ctx, makeRequest(map[string]any{"path": tt.path}))
			assertErrorCode(t, result, string(errors.ErrInvalidRequest))
		})
	}
}

func TestHandleExport_Inline(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)

	ingest(t, h, post("in1", "Inline"))

	result, _ := h.HandleExport(context.Background(), makeRequest(map[string]any{"inline": true}))
	out := parseOutput(t, result)
	env, ok := out["envelope"].(map[string]any)
	if !ok {
		t.Fatalf("envelope missing: %v", out)
	}
	if env["version"] != "1.0" {
		t.Errorf("version = %v, want 1.0", env["version"])
	}
	if _, ok := env["posts"].(map[string]any)["in1"]; !ok {
		t.Errorf("posts missing in1: %v", env["posts"])
	}
}

func TestHandleCleanup(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)
	ctx := context.Background()

	ingest(t, h, post("c1", "One"), post("c2", "Two"))

	result, _ := h.HandleCleanup(ctx, makeRequest(map[string]any{"strategy": "aggressive"}))
	out := parseOutput(t, result)
	if out["removedCount"] != float64(2) {
		t.Errorf("removedCount = %v, want 2", out["removedCount"])
	}

	result, _ = h.HandleCleanup(ctx, makeRequest(map[string]any{"strategy": "bogus"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleClearAll_RequiresConfirm(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)

	ingest(t, h, post("k1", "Kept"))

	result, _ := h.HandleClearAll(context.Background(), makeRequest(nil))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))

	result, _ = h.HandleStats(context.Background(), makeRequest(nil))
	if out := parseOutput(t, result); out["totalPosts"] != float64(1) {
		t.Errorf("totalPosts = %v, want 1", out["totalPosts"])
	}
}

func TestHandleQuotaStatus(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)

	result, _ := h.HandleQuotaStatus(context.Background(), makeRequest(map[string]any{"refresh": true}))
	out := parseOutput(t, result)
	if out["status"] != "OK" {
		t.Errorf("status = %v, want OK", out["status"])
	}
	adm, ok := out["admission"].(map[string]any)
	if !ok {
		t.Fatalf("admission missing: %v", out)
	}
	if adm["maxRequests"] != float64(20) {
		t.Errorf("maxRequests = %v, want 20", adm["maxRequests"])
	}
}

func TestHandleOptimizeAndEvents(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)
	ctx := context.Background()

	long := post("o1", "Long")
	long["text"] = strings.Repeat("lorem ", 1500)
	ingest(t, h, long)

	result, _ := h.HandleOptimize(ctx, makeRequest(nil))
	out := parseOutput(t, result)
	if out["optimizedCount"] != float64(1) {
		t.Errorf("optimizedCount = %v, want 1", out["optimizedCount"])
	}

	result, _ = h.HandleClearAll(ctx, makeRequest(map[string]any{"confirm": true}))
	parseOutput(t, result)

	result, _ = h.HandleEventList(ctx, makeRequest(map[string]any{"limit": 5}))
	out = parseOutput(t, result)
	events := out["events"].([]any)
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	if ev := events[0].(map[string]any); ev["event"] != "data_cleared" {
		t.Errorf("newest event = %v, want data_cleared", ev["event"])
	}
}

func TestHandle_CancelledContext(t *testing.T) {
	a, _ := testSetup(t)
	h := NewHandlers(a.Dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, _ := h.HandleStats(ctx, makeRequest(nil))
	assertErrorCode(t, result, string(errors.ErrCancelled))
}

func TestServerRegistration(t *testing.T) {
	a, cfg := testSetup(t)

	s := NewServer(a.Dispatcher, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"record_ingest",
		"record_query",
		"record_search",
		"record_get",
		"record_delete",
		"record_stats",
		"settings_get",
		"settings_update",
		"record_export",
		"record_import",
		"record_cleanup",
		"record_clear_all",
		"quota_status",
		"record_optimize",
		"event_list",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	a, cfg := testSetup(t)
	cfg.DisabledTools = []string{"record_clear_all", "record_delete"}
	cfg.DisabledTypes = []string{"event"}

	tools := NewServer(a.Dispatcher, cfg, "test").ListTools()

	for _, name := range []string{"record_clear_all", "record_delete", "event_list"} {
		if _, ok := tools[name]; ok {
			t.Errorf("tool %s should be disabled", name)
		}
	}
	if want := len(toolRegistry) - 3; len(tools) != want {
		t.Errorf("registered tool count = %d, want %d", len(tools), want)
	}
}

func TestServerRegistration_AllTypesDisabled(t *testing.T) {
	a, cfg := testSetup(t)
	cfg.DisabledTypes = KnownTypes

	tools := NewServer(a.Dispatcher, cfg, "test").ListTools()
	if len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"record_query", "capsule_store", "nope"})
	sort.Strings(unknown)
	if fmt.Sprint(unknown) != "[capsule_store nope]" {
		t.Errorf("unknown = %v", unknown)
	}

	if unknown := ValidateDisabledTypes([]string{"record", "capsule"}); len(unknown) != 1 || unknown[0] != "capsule" {
		t.Errorf("unknown types = %v", unknown)
	}
}

func TestGetTypeForTool(t *testing.T) {
	tests := map[string]string{
		"record_clear_all": "record",
		"settings_get":     "settings",
		"quota_status":     "quota",
		"event_list":       "event",
		"bare":             "",
	}
	for tool, want := range tests {
		if got := GetTypeForTool(tool); got != want {
			t.Errorf("GetTypeForTool(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != len(toolRegistry) {
		t.Fatalf("AllToolNames() = %d names, want %d", len(names), len(toolRegistry))
	}
	for _, name := range names {
		if typ := GetTypeForTool(name); typ == "" || len(ValidateDisabledTypes([]string{typ})) != 0 {
			t.Errorf("tool %s has no known type", name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
	if strings.Contains(errObj["message"].(string), "secret.db") {
		t.Fatalf("message leaks internals: %v", errObj["message"])
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("records[2]: %w", errors.NewSanitizationRejected("no content"))

	errObj := errorObject(t, errorResult(wrappedErr))
	if errObj["code"] != string(errors.ErrSanitizationRejected) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrSanitizationRejected)
	}
	msg := errObj["message"].(string)
	if !strings.HasPrefix(msg, "records[2]: ") {
		t.Errorf("message should keep wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("abc")))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" {
		t.Fatalf("code=%v, want INTERNAL", errObj["code"])
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error %s, got success: %s", expectedCode, extractErrorMessage(result))
		return
	}
	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	code, ok := errorObject(t, result)["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}
	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
