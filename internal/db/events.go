package db

import (
	"context"
	"database/sql"
	"encoding/json"
)

// EventLogCapacity is how many events are retained.
const EventLogCapacity = 100

// Event is one entry of the bounded event log.
type Event struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// AppendEvent records ev and trims the log to EventLogCapacity entries.
func AppendEvent(ctx context.Context, q DBTX, ev Event) error {
	var data sql.NullString
	if len(ev.Data) > 0 {
		b, err := json.Marshal(ev.Data)
		if err != nil {
			return storeErr(err)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO event_log (event, timestamp, data) VALUES (?, ?, ?)`,
		ev.Event, ev.Timestamp, data,
	); err != nil {
		return storeErr(err)
	}

	_, err := q.ExecContext(ctx, `
		DELETE FROM event_log WHERE seq NOT IN (
			SELECT seq FROM event_log ORDER BY seq DESC LIMIT ?
		)
	`, EventLogCapacity)
	return storeErr(err)
}

// ListEvents returns up to limit events, newest first. limit <= 0 means all.
func ListEvents(ctx context.Context, q DBTX, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = EventLogCapacity
	}
	rows, err := q.QueryContext(ctx,
		`SELECT event, timestamp, data FROM event_log ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var ev Event
		var data sql.NullString
		if err := rows.Scan(&ev.Event, &ev.Timestamp, &data); err != nil {
			return nil, storeErr(err)
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
				return nil, storeErr(err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return events, nil
}

// EventBytes returns the approximate serialized size of the event log.
func EventBytes(ctx context.Context, q DBTX) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(length(event) + length(timestamp) + COALESCE(length(data), 0)), 0)
		FROM event_log
	`).Scan(&n)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}
