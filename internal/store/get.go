package store

import (
	"context"
	"strings"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
)

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id string) (*record.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetRecord(ctx, s.db, id)
}
