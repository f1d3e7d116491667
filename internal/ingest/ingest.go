// Package ingest moves raw records through the pipeline: sanitize, dedup,
// admission, then the store.
package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hpungsan/feedvault/internal/admission"
	"github.com/hpungsan/feedvault/internal/dedup"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/metrics"
	"github.com/hpungsan/feedvault/internal/quota"
	"github.com/hpungsan/feedvault/internal/record"
	"github.com/hpungsan/feedvault/internal/sanitize"
	"github.com/hpungsan/feedvault/internal/store"
)

// Metric results
const (
	resultStored    = "stored"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultQueued    = "queued"
	resultFailed    = "failed"
)

// errDuplicate is returned by the admission processor when the id is already
// claimed in this process or already held by the store.
var errDuplicate = fmt.Errorf("duplicate record: %w", admission.ErrSkip)

// Recorder persists sanitized records.
type Recorder interface {
	InsertIfAbsent(ctx context.Context, rec *record.Record) (*store.InsertOutput, error)
}

// QuotaChecker runs the pre-insert quota check.
type QuotaChecker interface {
	Check(ctx context.Context, trigger quota.Trigger) (*quota.Snapshot, error)
}

// Config configures a Pipeline.
type Config struct {
	Limiter *admission.Limiter    // default 20 per minute
	Queue   admission.QueueConfig // Logger and Metrics default to the pipeline's
	Quota   QuotaChecker          // optional
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Pipeline is the single entry point for new records.
type Pipeline struct {
	san     *sanitize.Sanitizer
	seen    *dedup.Set
	rec     Recorder
	quota   QuotaChecker
	queue   *admission.Queue[*record.Record]
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New wires a pipeline and its admission queue.
func New(san *sanitize.Sanitizer, seen *dedup.Set, rec Recorder, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = admission.NewLimiter(20, time.Minute)
	}
	if cfg.Queue.Logger == nil {
		cfg.Queue.Logger = cfg.Logger
	}
	if cfg.Queue.Metrics == nil {
		cfg.Queue.Metrics = cfg.Metrics
	}

	p := &Pipeline{
		san:     san,
		seen:    seen,
		rec:     rec,
		quota:   cfg.Quota,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	p.queue = admission.NewQueue(cfg.Limiter, p.write, cfg.Queue)
	return p
}

// Result describes what happened to one raw record.
type Result struct {
	ID        string `json:"id,omitempty"`
	Accepted  bool   `json:"accepted"`
	Queued    bool   `json:"queued"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Dropped   int    `json:"dropped,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Ingest sanitizes raw and submits it for admission.
//
// A sanitizer rejection returns a Result carrying the reason together with
// the SANITIZATION_REJECTED error. An id already seen this process or
// already stored is a duplicate, not an error. On the direct path the store
// error, if any, is returned; queued records report failures only in the log.
func (p *Pipeline) Ingest(ctx context.Context, raw record.RawRecord) (*Result, error) {
	rec, err := p.san.Sanitize(raw)
	if err != nil {
		p.metrics.Ingest(resultRejected)
		res := &Result{ID: raw.ID(), Reason: err.Error()}
		if vErr, ok := errors.As(err); ok {
			if reason, ok := vErr.Details["reason"].(string); ok {
				res.Reason = reason
			}
		}
		p.log.Debug("ingest: rejected", "id", res.ID, "reason", res.Reason)
		return res, err
	}

	if p.seen.HasSeen(rec.ID) {
		p.metrics.Ingest(resultDuplicate)
		return &Result{ID: rec.ID, Duplicate: true, Reason: "duplicate"}, nil
	}

	out, err := p.queue.Submit(ctx, rec)
	if stderrors.Is(err, errDuplicate) {
		return &Result{ID: rec.ID, Duplicate: true, Reason: "duplicate"}, nil
	}
	res := &Result{ID: rec.ID, Accepted: out.Admitted && err == nil, Queued: out.Queued, Dropped: out.Dropped}
	if out.Queued {
		p.metrics.Ingest(resultQueued)
	}
	return res, err
}

// write is the admission processor. It claims the id in the dedup set before
// touching the store and releases it again on any failure. Duplicates return
// errDuplicate.
func (p *Pipeline) write(ctx context.Context, rec *record.Record) error {
	if !p.seen.MarkSeen(rec.ID) {
		p.metrics.Ingest(resultDuplicate)
		return errDuplicate
	}

	if p.quota != nil {
		snap, err := p.quota.Check(ctx, quota.TriggerOnDemand)
		if err != nil {
			p.log.Warn("ingest: quota check", "error", err)
		} else if snap.Status == quota.StatusCritical {
			rec = rec.Clone()
			rec.Optimize()
		}
	}

	out, err := p.rec.InsertIfAbsent(ctx, rec)
	if err != nil {
		p.seen.Forget(rec.ID)
		p.metrics.Ingest(resultFailed)
		return err
	}

	if !out.Inserted {
		p.metrics.Ingest(resultDuplicate)
		return errDuplicate
	}
	p.metrics.Ingest(resultStored)
	return nil
}

// Totals summarizes IngestAll.
type Totals struct {
	Read       int `json:"read"`
	Accepted   int `json:"accepted"`
	Queued     int `json:"queued"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
	Dropped    int `json:"dropped"`
}

// IngestAll drains ex through Ingest. Malformed entries and rejected records
// are counted and skipped; cancellation, a closed queue or an extractor read
// error stop the run and are returned with the totals so far.
func (p *Pipeline) IngestAll(ctx context.Context, ex Extractor) (*Totals, error) {
	t := &Totals{}
	for {
		raw, err := ex.Next(ctx)
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return t, errors.NewCancelled("ingest")
			}
			if stderrors.Is(err, ErrMalformed) {
				t.Read++
				t.Rejected++
				p.log.Debug("ingest: malformed entry", "error", err)
				continue
			}
			return t, errors.NewInvalidRequest(err.Error())
		}
		t.Read++

		res, err := p.Ingest(ctx, raw)
		switch {
		case errors.Is(err, errors.ErrSanitizationRejected):
			t.Rejected++
		case errors.Is(err, errors.ErrCancelled), errors.Is(err, errors.ErrQueueClosed):
			return t, err
		case err != nil:
			t.Failed++
			p.log.Warn("ingest: write failed", "id", res.ID, "error", err)
		case res.Duplicate:
			t.Duplicates++
		case res.Queued:
			t.Queued++
			t.Dropped += res.Dropped
		default:
			t.Accepted++
		}
	}
}

// Wait blocks until the admission queue is empty or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for p.queue.Len() > 0 {
		select {
		case <-ctx.Done():
			return errors.NewCancelled("wait for queue")
		case <-ticker.C:
		}
	}
	return nil
}

// Drain runs one admission pass now.
func (p *Pipeline) Drain(ctx context.Context) admission.DrainResult {
	return p.queue.Drain(ctx)
}

// Status reports limiter occupancy and queue depth.
func (p *Pipeline) Status() admission.Status {
	return p.queue.Status()
}

// Close stops the admission queue. Queued records are discarded.
func (p *Pipeline) Close() {
	p.queue.Close()
}
