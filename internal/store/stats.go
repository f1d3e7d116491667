package store

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/sanitize"
)

// StatsOutput summarizes the stored records.
type StatsOutput struct {
	TotalPosts           int    `json:"totalPosts"`
	PostsToday           int    `json:"postsToday"`
	PostsThisWeek        int    `json:"postsThisWeek"`
	PostsThisMonth       int    `json:"postsThisMonth"`
	PostsWithMedia       int    `json:"postsWithMedia"`
	UniqueAuthors        int    `json:"uniqueAuthors"`
	OldestPost           string `json:"oldestPost,omitempty"`
	NewestPost           string `json:"newestPost,omitempty"`
	StorageSize          int64  `json:"storageSize"`
	StorageSizeFormatted string `json:"storageSizeFormatted"`

	SanitizationHealth SanitizationHealth `json:"sanitizationHealth"`
}

// HealthSampleSize is how many of the newest records the sanitization
// health check inspects.
const HealthSampleSize = 10

// SanitizationHealth reports on a sample of the newest records. Sanitized
// counts records stamped by the sanitizer; ExecutableContent counts records
// still matching a high-risk pattern, which should always be zero.
type SanitizationHealth struct {
	Sampled           int     `json:"sampled"`
	Sanitized         int     `json:"sanitized"`
	SanitizationRate  float64 `json:"sanitizationRate"`
	ExecutableContent int     `json:"executableContent"`
}

// Stats counts records saved in the last day, week (7 days) and month (30 days),
// records with media, distinct non-empty author names and the savedAt range.
func (s *Store) Stats(ctx context.Context) (*StatsOutput, error) {
	agg, err := db.Aggregate(ctx, s.db, s.now())
	if err != nil {
		return nil, err
	}
	usage, err := s.Usage(ctx)
	if err != nil {
		return nil, err
	}

	health, err := s.sanitizationHealth(ctx)
	if err != nil {
		return nil, err
	}

	return &StatsOutput{
		TotalPosts:           agg.Total,
		PostsToday:           agg.SinceDay,
		PostsThisWeek:        agg.SinceWeek,
		PostsThisMonth:       agg.SinceMonth,
		PostsWithMedia:       agg.WithMedia,
		UniqueAuthors:        agg.UniqueAuthors,
		OldestPost:           formatMillis(agg.OldestMs),
		NewestPost:           formatMillis(agg.NewestMs),
		StorageSize:          usage.TotalBytes,
		StorageSizeFormatted: humanize.IBytes(uint64(usage.TotalBytes)),
		SanitizationHealth:   health,
	}, nil
}

func (s *Store) sanitizationHealth(ctx context.Context) (SanitizationHealth, error) {
	recs, _, err := db.ListRecords(ctx, s.db, db.RecordFilters{}, HealthSampleSize, 0)
	if err != nil {
		return SanitizationHealth{}, err
	}

	h := SanitizationHealth{Sampled: len(recs), SanitizationRate: 1}
	for _, rec := range recs {
		if rec.SanitizedAt != "" && rec.SanitizationVersion != "" {
			h.Sanitized++
		}
		if sanitize.IsRisky(rec) {
			h.ExecutableContent++
		}
	}
	if h.Sampled > 0 {
		h.SanitizationRate = float64(h.Sanitized) / float64(h.Sampled)
	}
	if h.ExecutableContent > 0 {
		s.log.Warn("store: executable content in stored records", "count", h.ExecutableContent, "sampled", h.Sampled)
	}
	return h, nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(sanitize.TimeLayout)
}
