package store

import (
	"context"
	"database/sql"
	"math"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/errors"
)

// Cleanup strategies.
const (
	StrategyAge        = "age"
	StrategyModerate   = "moderate"
	StrategyAggressive = "aggressive"
)

// CleanupOutput contains the result of a cleanup.
type CleanupOutput struct {
	Strategy     string `json:"strategy"`
	RemovedCount int    `json:"removedCount"`
}

// CleanupAge removes records saved more than days ago.
func (s *Store) CleanupAge(ctx context.Context, days int) (*CleanupOutput, error) {
	if days < 1 {
		return nil, errors.NewInvalidRequest("days must be at least 1")
	}
	return s.cleanup(ctx, StrategyAge, func(tx *sql.Tx) (int, error) {
		return db.DeleteSavedBefore(ctx, tx, s.now().AddDate(0, 0, -days))
	})
}

// ModerateCleanup removes records older than cleanupDays, then tops up with
// the oldest remaining records until CleanupBatchSize have been removed.
func (s *Store) ModerateCleanup(ctx context.Context) (*CleanupOutput, error) {
	return s.cleanup(ctx, StrategyModerate, func(tx *sql.Tx) (int, error) {
		st, err := s.loadSettings(ctx, tx)
		if err != nil {
			return 0, err
		}
		removed, err := db.DeleteSavedBefore(ctx, tx, s.now().AddDate(0, 0, -st.CleanupDays))
		if err != nil {
			return 0, err
		}
		if removed < CleanupBatchSize {
			more, err := db.DeleteOldest(ctx, tx, CleanupBatchSize-removed)
			if err != nil {
				return 0, err
			}
			removed += more
		}
		return removed, nil
	})
}

// AggressiveCleanup removes max(floor(0.3n), CleanupBatchSize) of the oldest
// records, capped at n.
func (s *Store) AggressiveCleanup(ctx context.Context) (*CleanupOutput, error) {
	return s.cleanup(ctx, StrategyAggressive, func(tx *sql.Tx) (int, error) {
		n, err := db.CountRecords(ctx, tx)
		if err != nil {
			return 0, err
		}
		return db.DeleteOldest(ctx, tx, AggressiveCount(n))
	})
}

// AggressiveCount is how many of n records aggressive cleanup removes.
func AggressiveCount(n int) int {
	k := int(math.Floor(float64(n) * AggressiveFraction))
	if k < CleanupBatchSize {
		k = CleanupBatchSize
	}
	if k > n {
		k = n
	}
	return k
}

func (s *Store) cleanup(ctx context.Context, strategy string, remove func(tx *sql.Tx) (int, error)) (*CleanupOutput, error) {
	out := &CleanupOutput{Strategy: strategy}
	err := s.write(ctx, func(tx *sql.Tx) error {
		var err error
		if out.RemovedCount, err = remove(tx); err != nil {
			return err
		}
		if out.RemovedCount == 0 {
			return nil
		}
		return s.appendEvent(ctx, tx, EventStorageCleanup, map[string]any{
			"type":         strategy,
			"removedCount": out.RemovedCount,
		})
	})
	if err != nil {
		return nil, err
	}

	if out.RemovedCount > 0 {
		s.log.Info("store: cleanup", "strategy", strategy, "removed", out.RemovedCount)
	}
	s.metrics.Cleanup(strategy, out.RemovedCount)
	return out, nil
}
