package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/feedvault/internal/command"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
	"github.com/hpungsan/feedvault/internal/settings"
	"github.com/hpungsan/feedvault/internal/store"
)

// Handlers contains the API route handlers.
type Handlers struct {
	d   *command.Dispatcher
	log *slog.Logger
}

func (h *Handlers) dispatch(w http.ResponseWriter, r *http.Request, cmd command.Command, status int) {
	out, err := h.d.Dispatch(r.Context(), cmd)
	if err != nil {
		if vErr, ok := errors.As(err); !ok || vErr.Status >= 500 {
			h.log.Error("web: command failed", "command", cmd.Name(), "error", err)
		}
		renderError(w, err)
		return
	}
	renderJSON(w, status, out)
}

// HandleIngest handles POST /api/ingest. The body is one raw record, an array
// of them, or {"records": [...]}.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r, maxBodyBytes)
	if err != nil {
		renderError(w, err)
		return
	}
	records, err := parseRecords(data)
	if err != nil {
		renderError(w, err)
		return
	}
	h.dispatch(w, r, command.Ingest{Records: records}, http.StatusOK)
}

func parseRecords(data []byte) ([]record.RawRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.NewInvalidRequest("request body is required")
	}

	var items []any
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, errors.NewInvalidRequest("invalid JSON body: " + err.Error())
		}
	} else {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, errors.NewInvalidRequest("invalid JSON body: " + err.Error())
		}
		if batch, ok := obj["records"].([]any); ok {
			items = batch
		} else {
			items = []any{obj}
		}
	}

	records := make([]record.RawRecord, len(items))
	for i, v := range items {
		if m, ok := v.(map[string]any); ok {
			records[i] = m
		}
	}
	return records, nil
}

func parseFilters(r *http.Request) (store.Filters, error) {
	q := r.URL.Query()
	return command.ParseFilters(q.Get("author"), q.Get("date_from"), q.Get("date_to"), parseBoolParam(r, "has_media"))
}

// HandleQuery handles GET /api/records.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		renderError(w, err)
		return
	}
	page, err := parseIntParam(r, "page", 1)
	if err != nil {
		renderError(w, err)
		return
	}
	limit, err := parseIntParam(r, "limit", store.DefaultQueryLimit)
	if err != nil {
		renderError(w, err)
		return
	}

	h.dispatch(w, r, command.Query{QueryInput: store.QueryInput{Filters: filters, Page: page, Limit: limit}}, http.StatusOK)
}

// HandleSearch handles GET /api/records/search?q=.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		renderError(w, err)
		return
	}
	h.dispatch(w, r, command.Search{SearchInput: store.SearchInput{Query: r.URL.Query().Get("q"), Filters: filters}}, http.StatusOK)
}

// HandleGet handles GET /api/records/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.Get{ID: chi.URLParam(r, "id")}, http.StatusOK)
}

// HandleDelete handles DELETE /api/records/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.Delete{ID: chi.URLParam(r, "id")}, http.StatusOK)
}

// HandleClearAll handles DELETE /api/records?confirm=true.
func (h *Handlers) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	if !parseBoolParam(r, "confirm") {
		renderError(w, errors.NewInvalidRequest(`confirm parameter must be "true"`))
		return
	}
	h.dispatch(w, r, command.ClearAll{}, http.StatusOK)
}

// HandleStats handles GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.Stats{}, http.StatusOK)
}

// HandleGetSettings handles GET /api/settings.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.GetSettings{}, http.StatusOK)
}

// HandleUpdateSettings handles PATCH /api/settings with a partial settings body.
func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var delta settings.Delta
	if err := decodeBody(r, &delta); err != nil {
		renderError(w, err)
		return
	}
	h.dispatch(w, r, command.UpdateSettings{Delta: delta}, http.StatusOK)
}

// HandleExport handles GET /api/export. The envelope is the response body.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	out, err := command.Do[*command.ExportOutput](r.Context(), h.d, command.Export{Inline: true})
	if err != nil {
		renderError(w, err)
		return
	}
	day := out.ExportDate
	if len(day) > 10 {
		day = day[:10]
	}
	name := "feedvault-export-" + day + ".json"
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	renderJSON(w, http.StatusOK, out.Envelope)
}

// HandleImport handles POST /api/import with an envelope body.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r, store.MaxImportBytes)
	if err != nil {
		renderError(w, err)
		return
	}
	h.dispatch(w, r, command.Import{Data: data}, http.StatusOK)
}

// HandleCleanup handles POST /api/cleanup?strategy=&days=.
func (h *Handlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntParam(r, "days", 0)
	if err != nil {
		renderError(w, err)
		return
	}
	h.dispatch(w, r, command.Cleanup{Strategy: r.URL.Query().Get("strategy"), Days: days}, http.StatusOK)
}

// HandleOptimize handles POST /api/optimize.
func (h *Handlers) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.Optimize{}, http.StatusOK)
}

// HandleQuota handles GET /api/quota?refresh=true.
func (h *Handlers) HandleQuota(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.QuotaStatus{Refresh: parseBoolParam(r, "refresh")}, http.StatusOK)
}

// HandleEvents handles GET /api/events?limit=.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		renderError(w, err)
		return
	}
	h.dispatch(w, r, command.Events{Limit: limit}, http.StatusOK)
}
