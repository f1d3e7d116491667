package store

import (
	"context"
	"database/sql"

	"github.com/hpungsan/feedvault/internal/db"
)

// OptimizeOutput contains the result of Optimize.
type OptimizeOutput struct {
	OptimizedCount int `json:"optimizedCount"`
}

// Optimize shrinks every stored record (see record.Optimize) and rewrites
// those that changed.
func (s *Store) Optimize(ctx context.Context) (*OptimizeOutput, error) {
	out := &OptimizeOutput{}
	err := s.write(ctx, func(tx *sql.Tx) error {
		all, err := db.AllRecords(ctx, tx)
		if err != nil {
			return err
		}
		for _, rec := range all {
			if !rec.Optimize() {
				continue
			}
			if err := db.UpdateRecord(ctx, tx, rec); err != nil {
				return err
			}
			out.OptimizedCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("store: optimized", "count", out.OptimizedCount)
	return out, nil
}
