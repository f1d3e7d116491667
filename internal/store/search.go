package store

import (
	"context"
	"strings"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/record"
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query string
	Filters
}

// SearchOutput contains the search results.
type SearchOutput struct {
	Posts       []*record.Record `json:"posts"`
	TotalCount  int              `json:"totalCount"`
	SearchQuery string           `json:"searchQuery"`
}

// Search finds records whose title, text or author name contains the query,
// case-insensitively. Title matches come first, then newest first.
// An empty query falls back to the first page of Query.
func (s *Store) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	q := strings.TrimSpace(input.Query)
	if q == "" {
		page, err := s.Query(ctx, QueryInput{Filters: input.Filters})
		if err != nil {
			return nil, err
		}
		return &SearchOutput{Posts: page.Posts, TotalCount: page.TotalCount}, nil
	}

	posts, err := db.SearchRecords(ctx, s.db, q, input.toDB())
	if err != nil {
		return nil, err
	}
	return &SearchOutput{
		Posts:       posts,
		TotalCount:  len(posts),
		SearchQuery: q,
	}, nil
}
