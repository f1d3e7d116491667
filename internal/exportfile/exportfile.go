// Package exportfile guards the files read by import and written by export.
//
// A path is accepted only if it has a .json extension and sits directly in
// <base>/exports or one of the configured allowed_paths. Writes go through a
// temp file and an atomic rename; both reads and writes refuse symlinks.
package exportfile

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/errors"
)

// Extension is the only extension accepted for export files.
const Extension = ".json"

// Mode indicates whether the path check is for reading or writing.
type Mode int

const (
	Read  Mode = iota // import
	Write             // export
)

// Paths validates and opens import/export files.
type Paths struct {
	exportsDir   string
	allowedPaths []string
	allowUnsafe  bool
}

// New returns the path policy for baseDir and cfg. cfg may be nil.
func New(baseDir string, cfg *config.Config) *Paths {
	p := &Paths{exportsDir: filepath.Join(baseDir, "exports")}
	if cfg != nil {
		p.allowedPaths = cfg.AllowedPaths
		p.allowUnsafe = cfg.AllowUnsafePaths
	}
	return p
}

// ExportsDir returns the default export directory.
func (p *Paths) ExportsDir() string {
	return p.exportsDir
}

// DefaultPath returns <exports>/feedvault-export-<timestamp>.json.
func (p *Paths) DefaultPath(now time.Time) string {
	name := "feedvault-export-" + now.UTC().Format("2006-01-02T150405") + Extension
	return filepath.Join(p.exportsDir, name)
}

// Validate checks path for traversal, extension, directory and symlink rules.
//
// The file must be DIRECTLY in an allowed directory. Disallowing subdirectories
// removes the window where an intermediate component could be swapped for a
// symlink between validation and open; O_NOFOLLOW covers the final component.
func (p *Paths) Validate(path string, mode Mode) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != Extension {
		return errors.NewInvalidRequest("path must have " + Extension + " extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if !p.allowUnsafe {
		allowedDirs, err := p.allowedDirs()
		if err != nil {
			return err
		}
		parentDir := filepath.Dir(absPath)
		if !isDirectlyIn(parentDir, allowedDirs) {
			return errors.NewInvalidRequest(
				fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v",
					allowedDirs))
		}
		if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == Read {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}

	// Symlink files are refused even with allow_unsafe_paths.
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// ReadFile validates path and reads at most limit bytes from it.
// A file larger than limit is an IMPORT_VALIDATION error.
func (p *Paths) ReadFile(path string, limit int64) ([]byte, error) {
	if err := p.Validate(path, Read); err != nil {
		return nil, err
	}

	f, err := openNoFollowRead(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return nil, errors.NewImportValidation(
			fmt.Sprintf("import file exceeds %d bytes", limit), true)
	}
	return data, nil
}

// WriteAtomic validates path and writes it via a temp file and rename, so an
// existing file is preserved if write fails.
func (p *Paths) WriteAtomic(path string, write func(w io.Writer) error) error {
	if err := p.Validate(path, Write); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := write(file); err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// allowedDirs returns the exports dir plus absolute allowed_paths entries,
// with symlinked entries resolved to their targets.
func (p *Paths) allowedDirs() ([]string, error) {
	dirs := []string{p.exportsDir}
	for _, d := range p.allowedPaths {
		if filepath.IsAbs(d) {
			dirs = append(dirs, filepath.Clean(d))
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

func isDirectlyIn(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
