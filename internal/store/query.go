package store

import (
	"context"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
)

// QueryInput contains parameters for the Query operation.
type QueryInput struct {
	Filters
	Page  int // 1-based, default 1
	Limit int // default DefaultQueryLimit, max MaxQueryLimit
}

// QueryOutput is one page of records, newest first.
type QueryOutput struct {
	Posts      []*record.Record `json:"posts"`
	TotalCount int              `json:"totalCount"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	HasMore    bool             `json:"hasMore"`
}

// Query lists records matching the filters, newest first.
func (s *Store) Query(ctx context.Context, input QueryInput) (*QueryOutput, error) {
	if input.Page <= 0 {
		input.Page = 1
	}
	if input.Limit <= 0 {
		input.Limit = DefaultQueryLimit
	}
	if input.Limit > MaxQueryLimit {
		input.Limit = MaxQueryLimit
	}
	if input.DateFrom != nil && input.DateTo != nil && input.DateFrom.After(*input.DateTo) {
		return nil, errors.NewInvalidRequest("dateFrom must not be after dateTo")
	}

	offset := (input.Page - 1) * input.Limit
	posts, total, err := db.ListRecords(ctx, s.db, input.toDB(), input.Limit, offset)
	if err != nil {
		return nil, err
	}

	return &QueryOutput{
		Posts:      posts,
		TotalCount: total,
		Page:       input.Page,
		Limit:      input.Limit,
		HasMore:    offset+len(posts) < total,
	}, nil
}
