package quota

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/logging"
	"github.com/hpungsan/feedvault/internal/record"
	"github.com/hpungsan/feedvault/internal/sanitize"
	"github.com/hpungsan/feedvault/internal/settings"
	"github.com/hpungsan/feedvault/internal/store"
)

func TestCheck_CriticalAgainstRealStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	s, err := store.New(ctx, database, store.Options{
		Sanitizer: sanitize.New(config.DefaultAllowedHosts).WithClock(clock),
		Logger:    logging.Discard(),
		Now:       clock,
	})
	require.NoError(t, err)

	for i := range 200 {
		_, err := s.InsertIfAbsent(ctx, &record.Record{
			ID:    fmt.Sprintf("r%03d", i),
			Title: "Post",
			Text:  "body",
		})
		require.NoError(t, err)
		now = now.Add(time.Second)
	}

	usage, err := s.Usage(ctx)
	require.NoError(t, err)
	capacity := int64(float64(usage.TotalBytes) / 0.96)

	m := NewMonitor(s, NewEstimator("", capacity), Config{
		Logger:   logging.Discard(),
		Notifier: LogNotifier{Logger: logging.Discard(), Events: s},
		Now:      clock,
	})

	snap, err := m.Check(ctx, TriggerOnDemand)
	require.NoError(t, err)
	require.Equal(t, StatusCritical, snap.Status)
	require.Equal(t, 200, snap.RecordCount)

	usage, err = s.Usage(ctx)
	require.NoError(t, err)
	require.Equal(t, 140, usage.RecordCount, "aggressive cleanup removed 30%")

	st, err := s.Settings(ctx)
	require.NoError(t, err)
	require.LessOrEqual(t, st.MaxRecords, settings.TightMaxRecords)
	require.True(t, st.AutoCleanup)

	var cached Snapshot
	ok, err := s.LoadSnapshot(ctx, &cached)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusCritical, cached.Status)

	events, err := s.Events(ctx, 0)
	require.NoError(t, err)
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	require.Contains(t, names, store.EventQuotaCritical)
	require.Contains(t, names, store.EventStorageCleanup)
	require.Contains(t, names, store.EventSettingsTightened)
}
