package store

import (
	"time"

	"github.com/hpungsan/feedvault/internal/db"
)

// Filters narrows Query and Search. Zero values match everything.
type Filters struct {
	Author   string     // case-insensitive substring of the author name
	DateFrom *time.Time // savedAt >= DateFrom
	DateTo   *time.Time // savedAt <= DateTo
	HasMedia bool
}

func (f Filters) toDB() db.RecordFilters {
	return db.RecordFilters{
		Author:   f.Author,
		From:     f.DateFrom,
		To:       f.DateTo,
		HasMedia: f.HasMedia,
	}
}
