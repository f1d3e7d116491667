package store

import (
	"context"
	"database/sql"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/record"
)

// InsertOutput contains the result of InsertIfAbsent.
type InsertOutput struct {
	ID         string `json:"id"`
	Inserted   bool   `json:"inserted"` // false means the id was already stored
	Evicted    int    `json:"evicted"`
	AgeRemoved int    `json:"age_removed"`
}

// InsertIfAbsent guards rec, stamps savedAt and stores it unless its id exists.
// Afterwards the store is trimmed to maxRecords and, with autoCleanup, by age.
// A duplicate id is not an error.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *record.Record) (*InsertOutput, error) {
	guarded, err := s.san.Guard(rec)
	if err != nil {
		return nil, err
	}

	out := &InsertOutput{ID: guarded.ID}
	err = s.write(ctx, func(tx *sql.Tx) error {
		st, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		if !st.SaveVideos {
			guarded.Media = withoutVideos(guarded.Media)
		}
		guarded.SavedAt = s.timestamp()

		inserted, err := db.InsertRecord(ctx, tx, guarded)
		if err != nil {
			return err
		}
		out.Inserted = inserted
		if !inserted {
			return nil
		}

		out.Evicted, out.AgeRemoved, err = s.enforceLimits(ctx, tx, st)
		return err
	})
	if err != nil {
		return nil, err
	}

	if out.Inserted {
		s.log.Debug("store: inserted", "id", out.ID, "evicted", out.Evicted, "age_removed", out.AgeRemoved)
	} else {
		s.log.Debug("store: duplicate skipped", "id", out.ID)
	}
	s.metrics.Cleanup("limit", out.Evicted)
	s.metrics.Cleanup("age", out.AgeRemoved)
	return out, nil
}

func withoutVideos(media []record.Media) []record.Media {
	var out []record.Media
	for _, m := range media {
		if m.Type != record.MediaVideo {
			out = append(out, m)
		}
	}
	return out
}
