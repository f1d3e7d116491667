package store

import (
	"context"

	"github.com/hpungsan/feedvault/internal/db"
)

// Usage is the serialized size of everything the store holds.
type Usage struct {
	TotalBytes  int64 `json:"totalBytes"`
	RecordBytes int64 `json:"recordBytes"`
	RecordCount int   `json:"recordCount"`
}

// Usage sums the serialized sizes of records, settings, the cached quota
// snapshot and the event log.
func (s *Store) Usage(ctx context.Context) (*Usage, error) {
	agg, err := db.Aggregate(ctx, s.db, s.now())
	if err != nil {
		return nil, err
	}
	kvBytes, err := db.KVBytes(ctx, s.db)
	if err != nil {
		return nil, err
	}
	eventBytes, err := db.EventBytes(ctx, s.db)
	if err != nil {
		return nil, err
	}

	return &Usage{
		TotalBytes:  agg.Bytes + kvBytes + eventBytes,
		RecordBytes: agg.Bytes,
		RecordCount: agg.Total,
	}, nil
}
