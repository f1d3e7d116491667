package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/feedvault/internal/config"
)

func TestInit(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", ".feedvault")

	db, err := Init(base)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	for _, p := range []string{filepath.Join(base, FileName), filepath.Join(base, "exports")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
}

func TestInit_Schema(t *testing.T) {
	db := testDB(t)

	objects := []struct{ kind, name string }{
		{"table", "records"},
		{"table", "kv"},
		{"table", "event_log"},
		{"index", "idx_records_saved_at"},
		{"index", "idx_records_author"},
	}
	for _, o := range objects {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", o.kind, o.name).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("%s %s missing (n=%d, err=%v)", o.kind, o.name, n, err)
		}
	}
}

func TestInit_ReopenKeepsVersion(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := Init(dir)
		if err != nil {
			t.Fatalf("Init() #%d error = %v", i+1, err)
		}
		v, err := GetUserVersion(db)
		db.Close()
		if err != nil {
			t.Fatalf("GetUserVersion() error = %v", err)
		}
		if v != CurrentSchemaVersion {
			t.Errorf("open #%d: user_version = %d, want %d", i+1, v, CurrentSchemaVersion)
		}
	}
}

func TestSetUserVersion(t *testing.T) {
	db := testDB(t)
	if err := SetUserVersion(db, 7); err != nil {
		t.Fatalf("SetUserVersion() error = %v", err)
	}
	if v, _ := GetUserVersion(db); v != 7 {
		t.Errorf("user_version = %d, want 7", v)
	}
}

func TestConfigurePool(t *testing.T) {
	db := testDB(t)

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 4, DBMaxIdleConns: 2})

	if got := db.Stats().MaxOpenConnections; got != 4 {
		t.Errorf("MaxOpenConnections = %d, want 4", got)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	wantErr := os.ErrInvalid
	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := InsertRecord(ctx, tx, testRecord("r1", "2026-01-01T00:00:00.000Z")); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("WithTx() error = %v, want %v", err, wantErr)
	}

	n, err := CountRecords(ctx, db)
	if err != nil {
		t.Fatalf("CountRecords() error = %v", err)
	}
	if n != 0 {
		t.Errorf("count after rollback = %d, want 0", n)
	}
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
