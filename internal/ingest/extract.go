package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/hpungsan/feedvault/internal/record"
)

// ErrMalformed marks an entry that could not be decoded. The extractor stays
// usable; the next call moves on to the following entry.
var ErrMalformed = stderrors.New("malformed record")

// Extractor yields raw records from some source. Next returns io.EOF once the
// source is exhausted.
type Extractor interface {
	Next(ctx context.Context) (record.RawRecord, error)
}

// maxLineBytes bounds a single JSON line.
const maxLineBytes = 4 * 1024 * 1024

// JSONLines reads one JSON object per line. Blank lines are skipped.
type JSONLines struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLines returns an Extractor over newline-delimited JSON.
func NewJSONLines(r io.Reader) *JSONLines {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &JSONLines{scanner: scanner}
}

// Next implements Extractor. A line that is valid JSON but not an object
// yields a nil RawRecord, which the sanitizer rejects.
func (j *JSONLines) Next(ctx context.Context) (record.RawRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, fmt.Errorf("line %d: %w", j.line+1, err)
			}
			return nil, io.EOF
		}
		j.line++

		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var v any
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", j.line, ErrMalformed, err)
		}
		m, _ := v.(map[string]any)
		return record.RawRecord(m), nil
	}
}

// JSONArray streams the elements of a top-level JSON array.
type JSONArray struct {
	dec     *json.Decoder
	started bool
	done    bool
	index   int
}

// NewJSONArray returns an Extractor over a JSON array of objects.
func NewJSONArray(r io.Reader) *JSONArray {
	return &JSONArray{dec: json.NewDecoder(r)}
}

// Next implements Extractor. Unlike JSONLines, a syntax error ends the stream
// since the decoder cannot resynchronize.
func (j *JSONArray) Next(ctx context.Context) (record.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if j.done {
		return nil, io.EOF
	}

	if !j.started {
		tok, err := j.dec.Token()
		if err != nil {
			j.done = true
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			j.done = true
			return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformed)
		}
		j.started = true
	}

	if !j.dec.More() {
		j.done = true
		return nil, io.EOF
	}

	var v any
	if err := j.dec.Decode(&v); err != nil {
		j.done = true
		return nil, fmt.Errorf("element %d: %w: %v", j.index, ErrMalformed, err)
	}
	j.index++

	m, _ := v.(map[string]any)
	return record.RawRecord(m), nil
}

// Detect picks JSONArray when the first non-space byte is '[' and JSONLines
// otherwise.
func Detect(r io.Reader) Extractor {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return NewJSONLines(br)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
			continue
		case '[':
			return NewJSONArray(br)
		default:
			return NewJSONLines(br)
		}
	}
}
