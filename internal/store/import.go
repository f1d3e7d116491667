package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hpungsan/feedvault/internal/db"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/record"
)

// ImportOutput contains the result of ImportMerge.
type ImportOutput struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
	Evicted  int `json:"evicted"`
}

// ImportMerge merges an export envelope into the store.
//
// The envelope is validated as a whole first: a payload over MaxImportBytes,
// unparseable JSON, a missing posts object or more than MaxImportRecords posts
// aborts with IMPORT_VALIDATION and nothing is written. After that each post
// is sanitized independently. Posts that fail sanitization or whose id is
// already stored are skipped; unexpected write failures are counted in Errors.
// Storage limits are enforced once all posts are written.
func (s *Store) ImportMerge(ctx context.Context, data []byte) (*ImportOutput, error) {
	if len(data) > MaxImportBytes {
		return nil, errors.NewImportValidation(
			fmt.Sprintf("import exceeds %d bytes", MaxImportBytes), true)
	}

	var env record.ImportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.NewImportValidation(fmt.Sprintf("invalid import JSON: %v", err), false)
	}
	if env.Posts == nil {
		return nil, errors.NewImportValidation("import has no posts object", false)
	}
	if len(env.Posts) > MaxImportRecords {
		return nil, errors.NewImportValidation(
			fmt.Sprintf("import has %d posts, limit is %d", len(env.Posts), MaxImportRecords), true)
	}

	source := env.Version
	if source == "" {
		source = "unknown"
	}

	keys := make([]string, 0, len(env.Posts))
	for k := range env.Posts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &ImportOutput{}
	err := s.write(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		for _, k := range keys {
			if ctx.Err() != nil {
				return errors.NewCancelled("import")
			}

			rec, ok := s.prepareImport(env.Posts[k])
			if !ok {
				out.Skipped++
				continue
			}
			rec.ImportedAt = now
			rec.ImportSource = source
			if rec.SavedAt == "" {
				rec.SavedAt = now
			}

			inserted, err := db.InsertRecord(ctx, tx, rec)
			switch {
			case err != nil:
				s.log.Warn("store: import write failed", "id", rec.ID, "error", err)
				out.Errors++
			case !inserted:
				out.Skipped++
			default:
				out.Imported++
			}
		}

		st, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		evicted, aged, err := s.enforceLimits(ctx, tx, st)
		if err != nil {
			return err
		}
		out.Evicted = evicted + aged

		return s.appendEvent(ctx, tx, EventImport, map[string]any{
			"imported": out.Imported,
			"skipped":  out.Skipped,
			"errors":   out.Errors,
			"source":   source,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("store: imported", "imported", out.Imported, "skipped", out.Skipped, "errors", out.Errors)
	return out, nil
}

// prepareImport runs one envelope entry through both sanitizer stages.
func (s *Store) prepareImport(v any) (*record.Record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	rec, err := s.san.Sanitize(record.RawRecord(m))
	if err != nil {
		return nil, false
	}
	rec, err = s.san.Guard(rec)
	if err != nil {
		return nil, false
	}
	return rec, true
}
