package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/errors"
)

// DeleteOutput contains the result of Delete.
type DeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Delete removes the record stored under id. A missing id is not an error;
// Deleted reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id string) (*DeleteOutput, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	var deleted bool
	err := s.write(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = db.DeleteRecord(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DeleteOutput{ID: id, Deleted: deleted}, nil
}
