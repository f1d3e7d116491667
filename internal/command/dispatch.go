package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hpungsan/feedvault/internal/admission"
	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/dedup"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/exportfile"
	"github.com/hpungsan/feedvault/internal/ingest"
	"github.com/hpungsan/feedvault/internal/quota"
	"github.com/hpungsan/feedvault/internal/record"
	"github.com/hpungsan/feedvault/internal/store"
)

// MaxIngestBatch bounds the records accepted by one Ingest command.
const MaxIngestBatch = 1000

// Deps are the components a Dispatcher drives.
type Deps struct {
	Store    *store.Store
	Pipeline *ingest.Pipeline
	Seen     *dedup.Set
	Monitor  *quota.Monitor
	Paths    *exportfile.Paths
	Logger   *slog.Logger
	Now      func() time.Time
}

// Dispatcher executes commands.
type Dispatcher struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	seen     *dedup.Set
	monitor  *quota.Monitor
	paths    *exportfile.Paths
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Dispatcher.
func New(d Deps) *Dispatcher {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Dispatcher{
		store:    d.Store,
		pipeline: d.Pipeline,
		seen:     d.Seen,
		monitor:  d.Monitor,
		paths:    d.Paths,
		log:      d.Logger,
		now:      d.Now,
	}
}

// Dispatch executes cmd and returns its output. The concrete output type for
// each command is documented on the handler it reaches.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled(cmd.Name())
	}
	d.log.Debug("command: dispatch", "command", cmd.Name())

	switch c := cmd.(type) {
	case Ingest:
		return d.ingest(ctx, c)
	case Get:
		return d.store.Get(ctx, c.ID)
	case Query:
		return d.store.Query(ctx, c.QueryInput)
	case Search:
		return d.store.Search(ctx, c.SearchInput)
	case Delete:
		return d.delete(ctx, c)
	case Stats:
		return d.store.Stats(ctx)
	case GetSettings:
		return d.store.Settings(ctx)
	case UpdateSettings:
		return d.store.UpdateSettings(ctx, c.Delta)
	case Export:
		return d.export(ctx, c)
	case Import:
		return d.importEnvelope(ctx, c)
	case Cleanup:
		return d.cleanup(ctx, c)
	case ClearAll:
		return d.clearAll(ctx)
	case QuotaStatus:
		return d.quotaStatus(ctx, c)
	case Optimize:
		return d.store.Optimize(ctx)
	case Events:
		return d.events(ctx, c)
	default:
		return nil, errors.NewInternal(fmt.Errorf("unhandled command %T", cmd))
	}
}

// Do dispatches cmd and asserts the output type.
func Do[T any](ctx context.Context, d *Dispatcher, cmd Command) (T, error) {
	var zero T
	out, err := d.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, errors.NewInternal(fmt.Errorf("%s returned %T", cmd.Name(), out))
	}
	return typed, nil
}

// IngestOutput reports a batch ingest. Results are in input order.
type IngestOutput struct {
	Results    []ingest.Result `json:"results"`
	Accepted   int             `json:"accepted"`
	Queued     int             `json:"queued"`
	Duplicates int             `json:"duplicates"`
	Rejected   int             `json:"rejected"`
	Failed     int             `json:"failed"`
}

// ingest returns *IngestOutput. Per-record rejections and store failures are
// reported in Results; cancellation and a closed queue abort the batch.
func (d *Dispatcher) ingest(ctx context.Context, c Ingest) (*IngestOutput, error) {
	if len(c.Records) == 0 {
		return nil, errors.NewInvalidRequest("records is required")
	}
	if len(c.Records) > MaxIngestBatch {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("at most %d records per request", MaxIngestBatch))
	}

	out := &IngestOutput{Results: make([]ingest.Result, 0, len(c.Records))}
	for _, raw := range c.Records {
		res, err := d.pipeline.Ingest(ctx, raw)
		if errors.Is(err, errors.ErrCancelled) || errors.Is(err, errors.ErrQueueClosed) {
			return nil, err
		}
		if res == nil {
			res = &ingest.Result{ID: raw.ID()}
		}

		switch {
		case errors.Is(err, errors.ErrSanitizationRejected):
			out.Rejected++
		case err != nil:
			out.Failed++
			res.Reason = err.Error()
		case res.Duplicate:
			out.Duplicates++
		case res.Queued:
			out.Queued++
		default:
			out.Accepted++
		}
		out.Results = append(out.Results, *res)
	}
	return out, nil
}

func (d *Dispatcher) delete(ctx context.Context, c Delete) (*store.DeleteOutput, error) {
	out, err := d.store.Delete(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	d.seen.Forget(out.ID)
	return out, nil
}

// ExportOutput describes a completed export. Envelope is set only for inline
// exports.
type ExportOutput struct {
	Path         string           `json:"path,omitempty"`
	PostsCount   int              `json:"postsCount"`
	SkippedCount int              `json:"skippedCount"`
	ExportDate   string           `json:"exportDate"`
	Envelope     *record.Envelope `json:"envelope,omitempty"`
}

func (d *Dispatcher) export(ctx context.Context, c Export) (*ExportOutput, error) {
	env, err := d.store.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	out := &ExportOutput{
		PostsCount:   env.PostsCount,
		SkippedCount: env.SkippedCount,
		ExportDate:   env.ExportDate,
	}
	if c.Inline {
		out.Envelope = env
		return out, nil
	}

	path := c.Path
	if path == "" {
		path = d.paths.DefaultPath(d.now())
	}
	err = d.paths.WriteAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("command: exported", "path", path, "posts", env.PostsCount, "skipped", env.SkippedCount)
	out.Path = path
	return out, nil
}

func (d *Dispatcher) importEnvelope(ctx context.Context, c Import) (*store.ImportOutput, error) {
	data := c.Data
	if len(data) == 0 {
		if strings.TrimSpace(c.Path) == "" {
			return nil, errors.NewInvalidRequest("path is required")
		}
		var err error
		data, err = d.paths.ReadFile(c.Path, store.MaxImportBytes)
		if err != nil {
			return nil, err
		}
	}
	return d.store.ImportMerge(ctx, data)
}

func (d *Dispatcher) cleanup(ctx context.Context, c Cleanup) (*store.CleanupOutput, error) {
	switch c.Strategy {
	case store.StrategyAge:
		days := c.Days
		if days == 0 {
			st, err := d.store.Settings(ctx)
			if err != nil {
				return nil, err
			}
			days = st.CleanupDays
		}
		return d.store.CleanupAge(ctx, days)
	case store.StrategyModerate, "":
		return d.store.ModerateCleanup(ctx)
	case store.StrategyAggressive:
		return d.store.AggressiveCleanup(ctx)
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf(
			"strategy must be one of %s, %s, %s", store.StrategyAge, store.StrategyModerate, store.StrategyAggressive))
	}
}

// clearAll also resets the dedup set so cleared ids can be ingested again.
func (d *Dispatcher) clearAll(ctx context.Context) (*store.ClearOutput, error) {
	out, err := d.store.ClearAll(ctx)
	if err != nil {
		return nil, err
	}
	d.seen.Reset()
	return out, nil
}

// QuotaOutput is the latest quota snapshot plus admission occupancy.
type QuotaOutput struct {
	*quota.Snapshot
	Admission admission.Status `json:"admission"`
}

func (d *Dispatcher) quotaStatus(ctx context.Context, c QuotaStatus) (*QuotaOutput, error) {
	snap := d.monitor.Last()
	if c.Refresh || snap == nil {
		var err error
		if snap, err = d.monitor.Check(ctx, quota.TriggerManual); err != nil {
			return nil, err
		}
	}
	return &QuotaOutput{Snapshot: snap, Admission: d.pipeline.Status()}, nil
}

// EventsOutput lists event log entries newest first.
type EventsOutput struct {
	Events []db.Event `json:"events"`
	Count  int        `json:"count"`
}

func (d *Dispatcher) events(ctx context.Context, c Events) (*EventsOutput, error) {
	events, err := d.store.Events(ctx, c.Limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []db.Event{}
	}
	return &EventsOutput{Events: events, Count: len(events)}, nil
}
