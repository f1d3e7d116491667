package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/feedvault/internal/app"
	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/logging"
)

// setupTestApp opens a fresh vault in a temporary directory.
func setupTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.QuotaCapacityBytes = 1 << 30
	a, err := app.Open(t.TempDir(), cfg, app.Options{
		Version:        "test",
		Logger:         logging.Discard(),
		DisableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to open app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// runCLI runs the CLI with stdin as input and returns what it wrote to stdout.
func runCLI(t *testing.T, a *app.App, stdin string, args ...string) (string, error) {
	t.Helper()
	cliApp := newCLIApp(a)
	var out bytes.Buffer
	cliApp.Writer = &out
	cliApp.Reader = strings.NewReader(stdin)
	err := cliApp.Run(append([]string{"feedvault"}, args...))
	return out.String(), err
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, s)
	}
	return m
}

const threeRecords = `{"id":"p1","title":"Go generics","text":"type parameters","author":{"name":"Ada"}}
{"id":"p2","title":"Rust traits","text":"not go","author":{"name":"Linus"}}

{"id":"p3","title":"More Go","text":"channels","author":{"name":"Ada"}}
not json
{"id":"p1","title":"Go generics","text":"again"}
`

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "large value", input: "365d", expected: 365},
		{name: "missing suffix", input: "7", expectError: true},
		{name: "wrong suffix", input: "7h", expectError: true},
		{name: "not a number", input: "xd", expectError: true},
		{name: "negative", input: "-1d", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got %d", tt.input, result)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"feedvault"}, false},
		{[]string{"feedvault", "query"}, true},
		{[]string{"feedvault", "clear-all"}, true},
		{[]string{"feedvault", "serve"}, true},
		{[]string{"feedvault", "--version"}, true},
		{[]string{"feedvault", "bogus"}, false},
	}
	for _, tt := range tests {
		if got := isCLIMode(tt.args); got != tt.want {
			t.Errorf("isCLIMode(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestBaseDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FEEDVAULT_HOME", dir)
	got, err := baseDir()
	if err != nil {
		t.Fatalf("baseDir: %v", err)
	}
	if got != dir {
		t.Errorf("baseDir = %q, want %q", got, dir)
	}
}

func TestCLI_IngestQueryGet(t *testing.T) {
	a := setupTestApp(t)

	out, err := runCLI(t, a, threeRecords, "ingest")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	totals := decode(t, out)
	if totals["accepted"] != float64(3) || totals["duplicates"] != float64(1) || totals["rejected"] != float64(1) {
		t.Errorf("unexpected totals: %v", totals)
	}

	out, err = runCLI(t, a, "", "query", "--author", "ada")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page := decode(t, out); page["totalCount"] != float64(2) {
		t.Errorf("expected 2 records by Ada, got %v", page["totalCount"])
	}

	out, err = runCLI(t, a, "", "search", "go")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res := decode(t, out); res["totalCount"] != float64(3) {
		t.Errorf("expected 3 matches for go, got %v", res["totalCount"])
	}

	out, err = runCLI(t, a, "", "get", "p2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec := decode(t, out); rec["title"] != "Rust traits" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestCLI_ErrorsAreCoded(t *testing.T) {
	a := setupTestApp(t)

	_, err := runCLI(t, a, "", "get", "missing")
	if err == nil || !strings.Contains(err.Error(), "[NOT_FOUND]") {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	_, err = runCLI(t, a, "", "delete")
	if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}

	_, err = runCLI(t, a, "", "query", "--from", "yesterday")
	if err == nil || !strings.Contains(err.Error(), "date_from") {
		t.Errorf("expected date_from error, got %v", err)
	}
}

func TestCLI_Settings(t *testing.T) {
	a := setupTestApp(t)

	out, err := runCLI(t, a, "", "settings", "--set", "maxRecords=250", "--set", "autoCleanup=false")
	if err != nil {
		t.Fatalf("settings --set: %v", err)
	}
	st := decode(t, out)
	if st["maxRecords"] != float64(250) || st["autoCleanup"] != false {
		t.Errorf("unexpected settings: %v", st)
	}

	out, err = runCLI(t, a, "", "settings")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if decode(t, out)["maxRecords"] != float64(250) {
		t.Errorf("update not persisted: %s", out)
	}

	_, err = runCLI(t, a, "", "settings", "--set", "colour=blue")
	if err == nil || !strings.Contains(err.Error(), "unknown setting") {
		t.Errorf("expected unknown setting error, got %v", err)
	}
}

func TestCLI_ClearAllRequiresYes(t *testing.T) {
	a := setupTestApp(t)
	if _, err := runCLI(t, a, threeRecords, "ingest"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	_, err := runCLI(t, a, "", "clear-all")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected confirmation error, got %v", err)
	}

	if _, err := runCLI(t, a, "", "clear-all", "--yes"); err != nil {
		t.Fatalf("clear-all --yes: %v", err)
	}
	out, err := runCLI(t, a, "", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if decode(t, out)["totalPosts"] != float64(0) {
		t.Errorf("expected empty store after clear-all: %s", out)
	}
}

func TestCLI_ExportImportRoundTrip(t *testing.T) {
	a := setupTestApp(t)
	if _, err := runCLI(t, a, threeRecords, "ingest"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	envelope, err := runCLI(t, a, "", "export", "--stdout")
	if err != nil {
		t.Fatalf("export --stdout: %v", err)
	}

	out, err := runCLI(t, a, "", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path, _ := decode(t, out)["path"].(string)
	if filepath.Dir(path) != filepath.Join(a.BaseDir, "exports") {
		t.Errorf("expected default export dir, got %q", path)
	}

	if _, err := runCLI(t, a, "", "clear-all", "--yes"); err != nil {
		t.Fatalf("clear-all: %v", err)
	}

	out, err = runCLI(t, a, envelope, "import")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res := decode(t, out); res["imported"] != float64(3) {
		t.Errorf("expected 3 imported, got %v", res)
	}

	out, err = runCLI(t, a, "", "import", "--path", path)
	if err != nil {
		t.Fatalf("import --path: %v", err)
	}
	if res := decode(t, out); res["skipped"] != float64(3) {
		t.Errorf("expected existing records skipped, got %v", res)
	}
}

func TestCLI_CleanupOlderThan(t *testing.T) {
	a := setupTestApp(t)
	if _, err := runCLI(t, a, threeRecords, "ingest"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	out, err := runCLI(t, a, "", "cleanup", "--older-than", "30d")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	res := decode(t, out)
	if res["strategy"] != "age" || res["removedCount"] != float64(0) {
		t.Errorf("fresh records should survive: %v", res)
	}

	_, err = runCLI(t, a, "", "cleanup", "--older-than", "30")
	if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestCLI_QuotaAndEvents(t *testing.T) {
	a := setupTestApp(t)

	out, err := runCLI(t, a, "", "quota")
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if decode(t, out)["status"] != "OK" {
		t.Errorf("expected OK quota: %s", out)
	}

	if _, err := runCLI(t, a, "", "clear-all", "--yes"); err != nil {
		t.Fatalf("clear-all: %v", err)
	}
	out, err = runCLI(t, a, "", "events", "--limit", "5")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if decode(t, out)["count"].(float64) < 1 {
		t.Errorf("expected data_cleared event: %s", out)
	}
}
