package quota

import (
	"context"
	"log/slog"

	"github.com/hpungsan/feedvault/internal/store"
)

// Notifier is told when the quota enters or stays in a non-OK state.
type Notifier interface {
	Notify(ctx context.Context, snap Snapshot)
}

// EventTracker appends to the store's event log.
type EventTracker interface {
	TrackEvent(ctx context.Context, name string, data map[string]any) error
}

// LogNotifier logs each notification and, with Events set, records it in the
// event log. There is no other delivery channel.
type LogNotifier struct {
	Logger *slog.Logger
	Events EventTracker
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, snap Snapshot) {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}

	msg, event := "storage usage high; consider cleaning up old records", store.EventQuotaWarning
	if snap.Status == StatusCritical {
		msg, event = "storage critically low; old records were cleaned up automatically", store.EventQuotaCritical
	}
	log.Warn("quota: "+msg, "percent_used", snap.Formatted.PercentUsed, "total", snap.Formatted.TotalBytes)

	if n.Events == nil {
		return
	}
	err := n.Events.TrackEvent(ctx, event, map[string]any{
		"percentUsed": snap.PercentUsed,
		"totalBytes":  snap.TotalBytes,
		"message":     msg,
	})
	if err != nil {
		log.Warn("quota: record notification", "error", err)
	}
}
