package store

import (
	"context"
	"database/sql"

	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/settings"
)

// Settings returns the persisted settings, or the defaults if none are stored.
func (s *Store) Settings(ctx context.Context) (settings.Settings, error) {
	return s.loadSettings(ctx, s.db)
}

// UpdateSettings applies d and persists the result. An invalid result is an
// INVALID_REQUEST error and nothing changes.
func (s *Store) UpdateSettings(ctx context.Context, d settings.Delta) (settings.Settings, error) {
	if d.IsEmpty() {
		return settings.Settings{}, errors.NewInvalidRequest("no settings to update")
	}

	var updated settings.Settings
	err := s.write(ctx, func(tx *sql.Tx) error {
		cur, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		if updated, err = cur.Apply(d); err != nil {
			return err
		}
		return s.putSettings(ctx, tx, updated)
	})
	if err != nil {
		return settings.Settings{}, err
	}

	s.log.Info("store: settings updated", "max_records", updated.MaxRecords, "auto_cleanup", updated.AutoCleanup)
	return updated, nil
}

// TightenSettings applies the low-storage ceilings (see settings.Tighten).
func (s *Store) TightenSettings(ctx context.Context) (settings.Settings, error) {
	var tightened settings.Settings
	err := s.write(ctx, func(tx *sql.Tx) error {
		cur, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		tightened = cur.Tighten()
		if err := s.putSettings(ctx, tx, tightened); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, EventSettingsTightened, map[string]any{
			"maxRecords":  tightened.MaxRecords,
			"cleanupDays": tightened.CleanupDays,
		})
	})
	if err != nil {
		return settings.Settings{}, err
	}

	s.log.Warn("store: settings tightened for low storage", "max_records", tightened.MaxRecords)
	return tightened, nil
}
