package store

import (
	"context"
	"database/sql"

	"github.com/hpungsan/feedvault/internal/db"
)

// ClearOutput contains the result of ClearAll.
type ClearOutput struct {
	Cleared        bool `json:"cleared"`
	RecordsRemoved int  `json:"recordsRemoved"`
}

// ClearAll removes every record, the persisted settings and the cached quota
// snapshot. Settings read afterwards are the defaults. The event log is kept
// and records the wipe.
func (s *Store) ClearAll(ctx context.Context) (*ClearOutput, error) {
	out := &ClearOutput{}
	err := s.write(ctx, func(tx *sql.Tx) error {
		var err error
		if out.RecordsRemoved, err = db.DeleteAllRecords(ctx, tx); err != nil {
			return err
		}
		if err := db.DeleteKV(ctx, tx, db.KeySettings); err != nil {
			return err
		}
		if err := db.DeleteKV(ctx, tx, db.KeyQuotaSnapshot); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, EventDataCleared, map[string]any{
			"recordsRemoved": out.RecordsRemoved,
		})
	})
	if err != nil {
		return nil, err
	}

	out.Cleared = true
	s.log.Warn("store: all data cleared", "records_removed", out.RecordsRemoved)
	return out, nil
}
