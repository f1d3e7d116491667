// Package quota tracks how much of the estimated storage capacity the store
// uses and remediates as usage crosses the warning and critical thresholds.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/feedvault/internal/metrics"
	"github.com/hpungsan/feedvault/internal/sanitize"
	"github.com/hpungsan/feedvault/internal/settings"
	"github.com/hpungsan/feedvault/internal/store"
)

// Status is the quota state.
type Status string

const (
	StatusOK       Status = "OK"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// Level maps the status to 0, 1 or 2 for the metrics gauge.
func (s Status) Level() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return 0
	}
}

// Classify returns the status for percentUsed under st's thresholds.
func Classify(percentUsed float64, st settings.Settings) Status {
	switch {
	case percentUsed >= st.CriticalThreshold:
		return StatusCritical
	case percentUsed >= st.WarningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

// Trigger says why a check runs. Periodic checks repeat the remediation for a
// non-OK state; the others only act when the state changes.
type Trigger string

const (
	TriggerPeriodic Trigger = "periodic"
	TriggerOnDemand Trigger = "on_demand"
	TriggerManual   Trigger = "manual"
)

// Snapshot is the result of one quota check.
type Snapshot struct {
	TotalBytes             int64     `json:"totalBytes"`
	RecordBytes            int64     `json:"recordBytes"`
	RecordCount            int       `json:"recordCount"`
	EstimatedCapacityBytes int64     `json:"estimatedCapacityBytes"`
	PercentUsed            float64   `json:"percentUsed"`
	Status                 Status    `json:"status"`
	CheckedAt              string    `json:"checkedAt"`
	Formatted              Formatted `json:"formatted"`
}

// Formatted holds human-readable sizes.
type Formatted struct {
	TotalBytes  string `json:"totalBytes"`
	RecordBytes string `json:"recordBytes"`
	Capacity    string `json:"estimatedCapacity"`
	PercentUsed string `json:"percentUsed"`
}

func format(s *Snapshot) Formatted {
	return Formatted{
		TotalBytes:  humanize.IBytes(uint64(s.TotalBytes)),
		RecordBytes: humanize.IBytes(uint64(s.RecordBytes)),
		Capacity:    humanize.IBytes(uint64(s.EstimatedCapacityBytes)),
		PercentUsed: fmt.Sprintf("%d%%", int(math.Round(s.PercentUsed*100))),
	}
}

// Store is the part of the store the monitor reads and remediates.
type Store interface {
	Usage(ctx context.Context) (*store.Usage, error)
	Settings(ctx context.Context) (settings.Settings, error)
	ModerateCleanup(ctx context.Context) (*store.CleanupOutput, error)
	AggressiveCleanup(ctx context.Context) (*store.CleanupOutput, error)
	TightenSettings(ctx context.Context) (settings.Settings, error)
	SaveSnapshot(ctx context.Context, v any) error
}

// Config configures a Monitor. Zero values get defaults.
type Config struct {
	FirstCheck time.Duration // default 30m
	Interval   time.Duration // default 1h
	Notifier   Notifier      // default logs only
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func (c *Config) defaults() {
	if c.FirstCheck <= 0 {
		c.FirstCheck = 30 * time.Minute
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Notifier == nil {
		c.Notifier = LogNotifier{Logger: c.Logger}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Monitor runs quota checks and owns the current quota state.
type Monitor struct {
	store     Store
	estimator *Estimator
	cfg       Config

	// checkMu serializes checks so a transition is acted on exactly once.
	checkMu sync.Mutex
	state   Status
	last    *Snapshot
}

// NewMonitor creates a Monitor in the OK state.
func NewMonitor(s Store, estimator *Estimator, cfg Config) *Monitor {
	cfg.defaults()
	return &Monitor{
		store:     s,
		estimator: estimator,
		cfg:       cfg,
		state:     StatusOK,
	}
}

// State returns the current quota state.
func (m *Monitor) State() Status {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()
	return m.state
}

// Last returns a copy of the most recent snapshot, or nil before the first check.
func (m *Monitor) Last() *Snapshot {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()
	if m.last == nil {
		return nil
	}
	s := *m.last
	return &s
}

// Check measures usage, classifies it and remediates.
//
// Entering WARNING runs a moderate cleanup and a warning notification.
// Entering CRITICAL runs an aggressive cleanup, a critical notification and
// tightens the settings. A periodic check repeats the tier's remediation
// while the state stays non-OK. Usage below the warning threshold returns to
// OK from any state.
func (m *Monitor) Check(ctx context.Context, trigger Trigger) (*Snapshot, error) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	st, err := m.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := m.store.Usage(ctx)
	if err != nil {
		return nil, err
	}

	capacity := m.estimator.Capacity()
	snap := &Snapshot{
		TotalBytes:             usage.TotalBytes,
		RecordBytes:            usage.RecordBytes,
		RecordCount:            usage.RecordCount,
		EstimatedCapacityBytes: capacity,
		PercentUsed:            float64(usage.TotalBytes) / float64(capacity),
		CheckedAt:              m.cfg.Now().UTC().Format(sanitize.TimeLayout),
	}
	snap.Status = Classify(snap.PercentUsed, st)
	snap.Formatted = format(snap)

	prev := m.state
	m.state = snap.Status
	m.last = snap

	if prev != snap.Status {
		m.cfg.Logger.Info("quota: state changed",
			"from", prev, "to", snap.Status, "percent_used", snap.PercentUsed, "trigger", trigger)
	}

	act := snap.Status != StatusOK && (prev != snap.Status || trigger == TriggerPeriodic)
	if act {
		m.remediate(ctx, snap, st)
	}

	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		m.cfg.Logger.Warn("quota: cache snapshot", "error", err)
	}
	m.cfg.Metrics.Quota(snap.TotalBytes, snap.RecordCount, snap.PercentUsed, snap.Status.Level())

	out := *snap
	return &out, nil
}

// remediate runs the tier's cleanup. Failures are logged; the check itself
// still succeeds since the state has already been measured.
func (m *Monitor) remediate(ctx context.Context, snap *Snapshot, st settings.Settings) {
	log := m.cfg.Logger

	switch snap.Status {
	case StatusWarning:
		if out, err := m.store.ModerateCleanup(ctx); err != nil {
			log.Error("quota: moderate cleanup", "error", err)
		} else {
			log.Info("quota: moderate cleanup", "removed", out.RemovedCount)
		}
	case StatusCritical:
		if out, err := m.store.AggressiveCleanup(ctx); err != nil {
			log.Error("quota: aggressive cleanup", "error", err)
		} else {
			log.Warn("quota: aggressive cleanup", "removed", out.RemovedCount)
		}
	}

	if st.EnableNotifications {
		m.cfg.Notifier.Notify(ctx, *snap)
	}

	if snap.Status == StatusCritical {
		if _, err := m.store.TightenSettings(ctx); err != nil {
			log.Error("quota: tighten settings", "error", err)
		}
	}
}

// Run checks after FirstCheck and then every Interval. Blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	log := m.cfg.Logger
	log.Info("quota: monitor started", "first_check", m.cfg.FirstCheck, "interval", m.cfg.Interval)

	timer := time.NewTimer(m.cfg.FirstCheck)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("quota: monitor stopped")
			return
		case <-timer.C:
			if _, err := m.Check(ctx, TriggerPeriodic); err != nil && ctx.Err() == nil {
				log.Warn("quota: periodic check", "error", err)
			}
			timer.Reset(m.cfg.Interval)
		}
	}
}
