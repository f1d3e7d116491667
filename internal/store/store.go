// Package store owns the persisted records, settings, quota snapshot and
// event log. All mutations are serialized by one mutex and run inside a
// SQLite transaction, so every operation is all-or-nothing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/metrics"
	"github.com/hpungsan/feedvault/internal/sanitize"
	"github.com/hpungsan/feedvault/internal/settings"
)

// Pagination limits
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// Cleanup sizing
const (
	// CleanupBatchSize is the minimum removed by moderate and aggressive cleanup.
	CleanupBatchSize = 50

	// AggressiveFraction of the records is removed by aggressive cleanup.
	AggressiveFraction = 0.3
)

// Import limits
const (
	MaxImportBytes   = 50 * 1024 * 1024
	MaxImportRecords = 10000
)

// Event names written to the event log.
const (
	EventStorageCleanup    = "storage_cleanup"
	EventDataCleared       = "data_cleared"
	EventSettingsTightened = "settings_tightened"
	EventImport            = "import"
	EventQuotaWarning      = "quota_warning"
	EventQuotaCritical     = "quota_critical"
)

// Options configures a Store. Zero values get defaults.
type Options struct {
	Sanitizer  *sanitize.Sanitizer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
	AppVersion string
}

// Store is the single owner of persisted state.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	san        *sanitize.Sanitizer
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
	appVersion string
}

// New wraps database and creates default settings if none are persisted.
func New(ctx context.Context, database *sql.DB, opts Options) (*Store, error) {
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		db:         database,
		san:        opts.Sanitizer,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		now:        opts.Now,
		appVersion: opts.AppVersion,
	}

	err := s.write(ctx, func(tx *sql.Tx) error {
		_, ok, err := db.GetKV(ctx, tx, db.KeySettings)
		if err != nil || ok {
			return err
		}
		return s.putSettings(ctx, tx, settings.Defaults())
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// write runs fn in a transaction while holding the store mutex.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled("store write")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return db.WithTx(ctx, s.db, fn)
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(sanitize.TimeLayout)
}

func (s *Store) loadSettings(ctx context.Context, q db.DBTX) (settings.Settings, error) {
	v, ok, err := db.GetKV(ctx, q, db.KeySettings)
	if err != nil {
		return settings.Settings{}, err
	}
	out := settings.Defaults()
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return settings.Settings{}, errors.NewStoreIO(err)
	}
	return out, nil
}

func (s *Store) putSettings(ctx context.Context, q db.DBTX, st settings.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.NewInternal(err)
	}
	return db.PutKV(ctx, q, db.KeySettings, string(data), s.now())
}

func (s *Store) appendEvent(ctx context.Context, q db.DBTX, name string, data map[string]any) error {
	return db.AppendEvent(ctx, q, db.Event{Event: name, Timestamp: s.timestamp(), Data: data})
}

// enforceLimits trims the store to maxRecords (oldest first) and, when
// autoCleanup is on, removes records older than cleanupDays.
func (s *Store) enforceLimits(ctx context.Context, q db.DBTX, st settings.Settings) (evicted, aged int, err error) {
	count, err := db.CountRecords(ctx, q)
	if err != nil {
		return 0, 0, err
	}
	if count > st.MaxRecords {
		evicted, err = db.DeleteOldest(ctx, q, count-st.MaxRecords)
		if err != nil {
			return 0, 0, err
		}
	}
	if st.AutoCleanup {
		aged, err = db.DeleteSavedBefore(ctx, q, s.now().AddDate(0, 0, -st.CleanupDays))
		if err != nil {
			return 0, 0, err
		}
	}
	return evicted, aged, nil
}
