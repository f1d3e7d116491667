package exportfile

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/errors"
)

func TestValidate_TraversalRejected(t *testing.T) {
	p := New(t.TempDir(), config.DefaultConfig())

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../backup.json"},
		{"deep traversal", "../../etc/backup.json"},
		{"mid-path traversal", "/tmp/../etc/backup.json"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Validate(tc.path, Write)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidate_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	p := New(t.TempDir(), cfg)

	for _, path := range []string{"/tmp/backup", "/tmp/backup.jsonl", "/tmp/backup.txt"} {
		if err := p.Validate(path, Write); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidRequest", path, err)
		}
	}
}

func TestValidate_DirectoryRestriction(t *testing.T) {
	base := t.TempDir()
	p := New(base, config.DefaultConfig())

	if err := p.Validate(filepath.Join(t.TempDir(), "backup.json"), Write); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("outside exports: got %v, want ErrInvalidRequest", err)
	}
	if err := p.Validate(filepath.Join(base, "exports", "nested", "backup.json"), Write); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("subdirectory: got %v, want ErrInvalidRequest", err)
	}
	if err := p.Validate(p.DefaultPath(time.Now()), Write); err != nil {
		t.Errorf("default path rejected: %v", err)
	}
}

func TestValidate_AllowedPaths(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}
	p := New(t.TempDir(), cfg)

	file := filepath.Join(allowed, "in.json")
	if err := os.WriteFile(file, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(file, Read); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}

	if err := p.Validate(filepath.Join(allowed, "missing.json"), Read); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing file: got %v, want NOT_FOUND", err)
	}
}

func TestValidate_SymlinkRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	dir := t.TempDir()
	p := New(dir, cfg)

	target := filepath.Join(dir, "target.json")
	link := filepath.Join(dir, "link.json")
	if err := os.WriteFile(target, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if err := p.Validate(link, Read); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("symlink: got %v, want ErrInvalidRequest", err)
	}
}

func TestWriteAtomic_ThenRead(t *testing.T) {
	base := t.TempDir()
	p := New(base, nil)
	path := p.DefaultPath(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	if filepath.Base(path) != "feedvault-export-2026-03-01T120000.json" {
		t.Errorf("DefaultPath() = %s", path)
	}

	err := p.WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, `{"posts":{}}`)
		return err
	})
	if err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}

	data, err := p.ReadFile(path, 1024)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"posts":{}}` {
		t.Errorf("ReadFile() = %q", data)
	}

	if _, err := p.ReadFile(path, 4); !errors.Is(err, errors.ErrImportValidation) {
		t.Errorf("oversized read: got %v, want IMPORT_VALIDATION", err)
	}
}

func TestWriteAtomic_FailurePreservesExisting(t *testing.T) {
	p := New(t.TempDir(), nil)
	path := filepath.Join(p.ExportsDir(), "keep.json")

	if err := p.WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "original")
		return err
	}); err != nil {
		t.Fatalf("first write error = %v", err)
	}

	boom := stderrors.New("boom")
	err := p.WriteAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, errors.ErrInternal) {
		t.Fatalf("WriteAtomic() error = %v, want INTERNAL", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("file = %q, want original", data)
	}

	entries, _ := os.ReadDir(p.ExportsDir())
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
