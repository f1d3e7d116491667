package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/errors"
)

// Events returns up to limit logged events, newest first.
func (s *Store) Events(ctx context.Context, limit int) ([]db.Event, error) {
	return db.ListEvents(ctx, s.db, limit)
}

// TrackEvent appends an event to the bounded log.
func (s *Store) TrackEvent(ctx context.Context, name string, data map[string]any) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		return s.appendEvent(ctx, tx, name, data)
	})
}

// SaveSnapshot caches v as the latest quota snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		return db.PutKV(ctx, tx, db.KeyQuotaSnapshot, string(data), s.now())
	})
}

// LoadSnapshot decodes the cached quota snapshot into v. It reports false if
// none is cached.
func (s *Store) LoadSnapshot(ctx context.Context, v any) (bool, error) {
	data, ok, err := db.GetKV(ctx, s.db, db.KeyQuotaSnapshot)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, errors.NewStoreIO(err)
	}
	return true, nil
}
