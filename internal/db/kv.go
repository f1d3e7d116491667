package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"
)

// Well-known kv keys.
const (
	KeySettings      = "settings"
	KeyQuotaSnapshot = "quota_snapshot"
)

// GetKV returns the value stored under key, and whether it exists.
func GetKV(ctx context.Context, q DBTX, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr(err)
	}
	return value, true, nil
}

// PutKV upserts key.
func PutKV(ctx context.Context, q DBTX, key, value string, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now.UnixMilli())
	return storeErr(err)
}

// DeleteKV removes key if present.
func DeleteKV(ctx context.Context, q DBTX, key string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return storeErr(err)
}

// KVBytes returns the total size of stored values.
func KVBytes(ctx context.Context, q DBTX) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(value)), 0) FROM kv`).Scan(&n); err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}
