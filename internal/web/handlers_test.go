package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/feedvault/internal/app"
	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/logging"
)

func setupTest(t *testing.T) (*app.App, http.Handler) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.QuotaCapacityBytes = 1 << 30
	a, err := app.Open(t.TempDir(), cfg, app.Options{Version: "test", Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, NewRouter(a.Dispatcher, a.Metrics, logging.Discard())
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := decodeJSON(t, rec)["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return errObj["code"].(string)
}

const twoPosts = `{"records":[
	{"id":"w1","title":"Hello web","text":"first","author":{"name":"Ada"}},
	{"id":"w2","title":"Second","text":"mentions hello","author":{"name":"Linus"},
	 "media":[{"type":"image","url":"https://media.licdn.com/a.jpg"}]}
]}`

func TestIngestAndRead(t *testing.T) {
	_, h := setupTest(t)

	rec := do(t, h, http.MethodPost, "/api/ingest", twoPosts)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, float64(2), decodeJSON(t, rec)["accepted"])

	rec = do(t, h, http.MethodGet, "/api/records/w1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Hello web", decodeJSON(t, rec)["title"])

	rec = do(t, h, http.MethodGet, "/api/records?has_media=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeJSON(t, rec)
	require.Equal(t, float64(1), page["totalCount"])

	rec = do(t, h, http.MethodGet, "/api/records/search?q=hello", "")
	require.Equal(t, http.StatusOK, rec.Code)
	found := decodeJSON(t, rec)
	require.Equal(t, float64(2), found["totalCount"])
	first := found["posts"].([]any)[0].(map[string]any)
	require.Equal(t, "w1", first["id"], "title match ranks first")

	rec = do(t, h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), decodeJSON(t, rec)["uniqueAuthors"])
}

func TestIngest_BodyShapes(t *testing.T) {
	_, h := setupTest(t)

	rec := do(t, h, http.MethodPost, "/api/ingest", `{"id":"single","title":"One"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), decodeJSON(t, rec)["accepted"])

	rec = do(t, h, http.MethodPost, "/api/ingest", `[{"id":"arr","title":"Two"}, 7]`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	require.Equal(t, float64(1), out["accepted"])
	require.Equal(t, float64(1), out["rejected"])

	rec = do(t, h, http.MethodPost, "/api/ingest", `{broken`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", errorCode(t, rec))

	rec = do(t, h, http.MethodPost, "/api/ingest", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorsMapToStatus(t *testing.T) {
	_, h := setupTest(t)

	rec := do(t, h, http.MethodGet, "/api/records/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = do(t, h, http.MethodDelete, "/api/records/missing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeJSON(t, rec)["deleted"])

	rec = do(t, h, http.MethodGet, "/api/records?page=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/records?date_from=2026-02-01&date_to=2026-01-01", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/cleanup?strategy=nuke", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAndClearAll(t *testing.T) {
	_, h := setupTest(t)
	do(t, h, http.MethodPost, "/api/ingest", twoPosts)

	rec := do(t, h, http.MethodDelete, "/api/records/w1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeJSON(t, rec)["deleted"])

	rec = do(t, h, http.MethodDelete, "/api/records", "")
	require.Equal(t, http.StatusBadRequest, rec.Code, "clear-all needs confirm")

	rec = do(t, h, http.MethodDelete, "/api/records?confirm=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := decodeJSON(t, rec)
	require.Equal(t, true, cleared["cleared"])
	require.Equal(t, float64(1), cleared["recordsRemoved"])

	rec = do(t, h, http.MethodGet, "/api/events?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decodeJSON(t, rec)["events"].([]any)[0].(map[string]any)
	require.Equal(t, "data_cleared", ev["event"])
}

func TestSettings(t *testing.T) {
	_, h := setupTest(t)

	rec := do(t, h, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1000), decodeJSON(t, rec)["maxRecords"])

	rec = do(t, h, http.MethodPatch, "/api/settings", `{"maxRecords": 5, "saveVideos": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	require.Equal(t, float64(5), out["maxRecords"])
	require.Equal(t, false, out["saveVideos"])

	rec = do(t, h, http.MethodPatch, "/api/settings", `{"maxRecords": 0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPatch, "/api/settings", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportImportRoundTrip(t *testing.T) {
	_, h := setupTest(t)
	do(t, h, http.MethodPost, "/api/ingest", twoPosts)

	rec := do(t, h, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "feedvault-export-")
	envelope := rec.Body.String()
	require.Equal(t, float64(2), decodeJSON(t, rec)["postsCount"])

	do(t, h, http.MethodDelete, "/api/records?confirm=true", "")

	rec = do(t, h, http.MethodPost, "/api/import", envelope)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, float64(2), decodeJSON(t, rec)["imported"])

	rec = do(t, h, http.MethodPost, "/api/import", `{"version":"1.0"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "IMPORT_VALIDATION", errorCode(t, rec))
}

func TestCleanupOptimizeQuota(t *testing.T) {
	_, h := setupTest(t)
	do(t, h, http.MethodPost, "/api/ingest", twoPosts)

	rec := do(t, h, http.MethodPost, "/api/optimize", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/quota?refresh=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	q := decodeJSON(t, rec)
	require.Equal(t, "OK", q["status"])
	require.Equal(t, float64(2), q["recordCount"])

	rec = do(t, h, http.MethodPost, "/api/cleanup?strategy=aggressive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), decodeJSON(t, rec)["removedCount"])
}

func TestSecurityHeadersAndMetrics(t *testing.T) {
	_, h := setupTest(t)

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	do(t, h, http.MethodGet, "/api/records/nope", "")

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "feedvault_http_requests_total")
	require.Contains(t, body, `route="/api/records/{id}"`)
	require.Contains(t, body, `status="404"`)
}

func TestRun_GracefulShutdown(t *testing.T) {
	a, _ := setupTest(t)
	srv := NewServer(a.Dispatcher, a.Metrics, logging.Discard(), "127.0.0.1", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, logging.Discard()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
