package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
)

// storeErr wraps a driver error as STORE_IO, passing VaultErrors through.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewStoreIO(err)
}

// ParseSavedAt converts a record's savedAt to unix milliseconds (0 if unset).
func ParseSavedAt(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// InsertRecord stores rec unless its id already exists.
// Returns false for a duplicate id.
func InsertRecord(ctx context.Context, q DBTX, rec *record.Record) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, errors.NewInternal(err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO records (
			id, data, saved_at, title_lc, text_lc, author_lc, has_media, size_bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, string(data), ParseSavedAt(rec.SavedAt),
		record.Normalize(rec.Title), record.Normalize(rec.Text), record.Normalize(rec.Author.Name),
		boolToInt(rec.HasMedia()), len(data),
	)
	if err != nil {
		return false, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

// UpdateRecord rewrites an existing record in place.
func UpdateRecord(ctx context.Context, q DBTX, rec *record.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.NewInternal(err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE records
		SET data = ?, saved_at = ?, title_lc = ?, text_lc = ?, author_lc = ?, has_media = ?, size_bytes = ?
		WHERE id = ?
	`,
		string(data), ParseSavedAt(rec.SavedAt),
		record.Normalize(rec.Title), record.Normalize(rec.Text), record.Normalize(rec.Author.Name),
		boolToInt(rec.HasMedia()), len(data), rec.ID,
	)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return errors.NewNotFound(rec.ID)
	}
	return nil
}

// RecordExists reports whether a record with id is stored.
func RecordExists(ctx context.Context, q DBTX, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}
	return true, nil
}

// GetRecord retrieves a record by id.
func GetRecord(ctx context.Context, q DBTX, id string) (*record.Record, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeRecord(data)
}

// DeleteRecord removes a record. Returns false if it did not exist.
func DeleteRecord(ctx context.Context, q DBTX, id string) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err)
	}
	return n > 0, nil
}

// CountRecords returns the number of stored records.
func CountRecords(ctx context.Context, q DBTX) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// DeleteOldest removes the n oldest records by savedAt (ties by insertion order).
func DeleteOldest(ctx context.Context, q DBTX, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := q.ExecContext(ctx, `
		DELETE FROM records WHERE rowid IN (
			SELECT rowid FROM records ORDER BY saved_at ASC, rowid ASC LIMIT ?
		)
	`, n)
	if err != nil {
		return 0, storeErr(err)
	}
	return rowsAffected(res)
}

// DeleteSavedBefore removes every record saved before cutoff.
func DeleteSavedBefore(ctx context.Context, q DBTX, cutoff time.Time) (int, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM records WHERE saved_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, storeErr(err)
	}
	return rowsAffected(res)
}

// DeleteAllRecords removes every record.
func DeleteAllRecords(ctx context.Context, q DBTX) (int, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM records`)
	if err != nil {
		return 0, storeErr(err)
	}
	return rowsAffected(res)
}

// RecordFilters narrows list and search queries. Zero values match everything.
type RecordFilters struct {
	Author   string // case-insensitive substring of the author name
	From     *time.Time
	To       *time.Time
	HasMedia bool
}

// where builds the WHERE clause for filters.
func (f RecordFilters) where() (string, []any) {
	var conds []string
	var args []any

	if a := record.Normalize(f.Author); a != "" {
		conds = append(conds, "instr(author_lc, ?) > 0")
		args = append(args, a)
	}
	if f.From != nil {
		conds = append(conds, "saved_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if f.To != nil {
		conds = append(conds, "saved_at <= ?")
		args = append(args, f.To.UnixMilli())
	}
	if f.HasMedia {
		conds = append(conds, "has_media = 1")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListRecords returns a page of records newest first, plus the total match count.
func ListRecords(ctx context.Context, q DBTX, filters RecordFilters, limit, offset int) ([]*record.Record, int, error) {
	where, args := filters.where()

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`+where, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT data FROM records`+where+` ORDER BY saved_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	items, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchRecords returns records whose title, text or author name contains
// term (case-insensitive). Title matches sort first, then newest first.
func SearchRecords(ctx context.Context, q DBTX, term string, filters RecordFilters) ([]*record.Record, error) {
	term = record.Normalize(term)
	where, args := filters.where()

	match := "(instr(title_lc, ?) > 0 OR instr(text_lc, ?) > 0 OR instr(author_lc, ?) > 0)"
	if where == "" {
		where = " WHERE " + match
	} else {
		where += " AND " + match
	}
	args = append(args, term, term, term)

	query := `SELECT data FROM records` + where +
		` ORDER BY (instr(title_lc, ?) > 0) DESC, saved_at DESC, rowid DESC`
	args = append(args, term)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRecords(rows)
}

// AllRecords returns every record, oldest first.
func AllRecords(ctx context.Context, q DBTX) ([]*record.Record, error) {
	rows, err := q.QueryContext(ctx, `SELECT data FROM records ORDER BY saved_at ASC, rowid ASC`)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRecords(rows)
}

// RecordAggregates are the SQL-side statistics over the records table.
type RecordAggregates struct {
	Total         int
	SinceDay      int
	SinceWeek     int
	SinceMonth    int
	WithMedia     int
	UniqueAuthors int
	OldestMs      int64 // 0 when empty
	NewestMs      int64
	Bytes         int64
}

// Aggregate computes record statistics relative to now.
func Aggregate(ctx context.Context, q DBTX, now time.Time) (*RecordAggregates, error) {
	day := now.Add(-24 * time.Hour).UnixMilli()
	week := now.Add(-7 * 24 * time.Hour).UnixMilli()
	month := now.Add(-30 * 24 * time.Hour).UnixMilli()

	var a RecordAggregates
	var oldest, newest sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(saved_at > ?), 0),
			COALESCE(SUM(saved_at > ?), 0),
			COALESCE(SUM(saved_at > ?), 0),
			COALESCE(SUM(has_media), 0),
			COUNT(DISTINCT NULLIF(author_lc, '')),
			MIN(saved_at),
			MAX(saved_at),
			COALESCE(SUM(size_bytes), 0)
		FROM records
	`, day, week, month).Scan(
		&a.Total, &a.SinceDay, &a.SinceWeek, &a.SinceMonth, &a.WithMedia,
		&a.UniqueAuthors, &oldest, &newest, &a.Bytes,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	a.OldestMs = oldest.Int64
	a.NewestMs = newest.Int64
	return &a, nil
}

func scanRecords(rows *sql.Rows) ([]*record.Record, error) {
	defer rows.Close()

	items := make([]*record.Record, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storeErr(err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

func decodeRecord(data string) (*record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &rec, nil
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err)
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
