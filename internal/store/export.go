package store

import (
	"context"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/record"
)

// ExportAll returns every record in export-safe form, wrapped in the export
// envelope. Records without an id or savedAt are counted as skipped.
func (s *Store) ExportAll(ctx context.Context) (*record.Envelope, error) {
	all, err := db.AllRecords(ctx, s.db)
	if err != nil {
		return nil, err
	}

	env := &record.Envelope{
		Version:    record.ExportVersion,
		ExportDate: s.timestamp(),
		Posts:      make(map[string]*record.Record, len(all)),
		ExportMetadata: record.ExportMetadata{
			SanitizationVersion: record.SanitizationVersion,
			AppVersion:          s.appVersion,
		},
	}
	for _, rec := range all {
		safe, ok := s.san.ForExport(rec)
		if !ok {
			env.SkippedCount++
			continue
		}
		env.Posts[safe.ID] = safe
	}
	env.PostsCount = len(env.Posts)

	s.log.Info("store: exported", "posts", env.PostsCount, "skipped", env.SkippedCount)
	return env, nil
}
