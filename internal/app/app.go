// Package app wires the components once per process and owns their lifecycle.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/feedvault/internal/admission"
	"github.com/hpungsan/feedvault/internal/command"
	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/dedup"
	"github.com/hpungsan/feedvault/internal/exportfile"
	"github.com/hpungsan/feedvault/internal/ingest"
	"github.com/hpungsan/feedvault/internal/metrics"
	"github.com/hpungsan/feedvault/internal/quota"
	"github.com/hpungsan/feedvault/internal/sanitize"
	"github.com/hpungsan/feedvault/internal/store"
)

// Options tune Open. Zero values get defaults.
type Options struct {
	Version string
	Logger  *slog.Logger
	Now     func() time.Time

	// DisableMetrics skips the Prometheus registry (MCP mode has nowhere to
	// serve it).
	DisableMetrics bool
}

// App is the wired process.
type App struct {
	BaseDir    string
	Config     *config.Config
	DB         *sql.DB
	Store      *store.Store
	Seen       *dedup.Set
	Pipeline   *ingest.Pipeline
	Monitor    *quota.Monitor
	Metrics    *metrics.Metrics
	Dispatcher *command.Dispatcher

	log *slog.Logger

	mu      sync.Mutex
	stop    context.CancelFunc
	running sync.WaitGroup
	closed  bool
}

// Open initializes the database under baseDir and constructs every component.
func Open(baseDir string, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, cfg)

	var m *metrics.Metrics
	if !opts.DisableMetrics {
		m = metrics.New(opts.Version)
	}

	san := sanitize.New(cfg.AllowedHosts).WithClock(opts.Now)
	s, err := store.New(context.Background(), database, store.Options{
		Sanitizer:  san,
		Metrics:    m,
		Logger:     log.With("component", "store"),
		Now:        opts.Now,
		AppVersion: opts.Version,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	monitor := quota.NewMonitor(s, quota.NewEstimator(baseDir, cfg.QuotaCapacityBytes), quota.Config{
		FirstCheck: cfg.QuotaFirstCheck(),
		Interval:   cfg.QuotaCheckInterval(),
		Notifier:   quota.LogNotifier{Logger: log.With("component", "quota"), Events: s},
		Logger:     log.With("component", "quota"),
		Metrics:    m,
		Now:        opts.Now,
	})

	seen := dedup.New()
	pipeline := ingest.New(san, seen, s, ingest.Config{
		Limiter: admission.NewLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow()).WithClock(opts.Now),
		Queue: admission.QueueConfig{
			MaxLength:     cfg.QueueMaxLength,
			DrainInterval: cfg.QueueDrainInterval(),
			StaleAfter:    cfg.QueueStaleAfter(),
			Now:           opts.Now,
		},
		Quota:   monitor,
		Logger:  log.With("component", "ingest"),
		Metrics: m,
	})

	a := &App{
		BaseDir:  baseDir,
		Config:   cfg,
		DB:       database,
		Store:    s,
		Seen:     seen,
		Pipeline: pipeline,
		Monitor:  monitor,
		Metrics:  m,
		log:      log,
	}
	a.Dispatcher = command.New(command.Deps{
		Store:    s,
		Pipeline: pipeline,
		Seen:     seen,
		Monitor:  monitor,
		Paths:    exportfile.New(baseDir, cfg),
		Logger:   log.With("component", "command"),
		Now:      opts.Now,
	})

	log.Debug("app: opened", "base_dir", baseDir, "version", opts.Version)
	return a, nil
}

// Run starts the quota monitor and any extra services, and blocks until ctx
// is done, Close is called, or a service fails. The first service error is
// returned.
func (a *App) Run(ctx context.Context, services ...func(context.Context) error) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.stop = cancel
	a.running.Add(1)
	a.mu.Unlock()
	defer a.running.Done()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Monitor.Run(ctx)
		return nil
	})
	for _, svc := range services {
		g.Go(func() error { return svc(ctx) })
	}
	return g.Wait()
}

// Close stops the monitor, closes the admission queue, then the database.
// Records still queued are discarded. Close is idempotent.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	stop := a.stop
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	a.running.Wait()

	a.Pipeline.Close()
	err := a.DB.Close()
	a.log.Debug("app: closed")
	return err
}
