// Package ingest loads classified chunk records into pipeline chunks.
// Records are usually stored one JSON object per file in a directory; any
// stream of objects with the same shape is also accepted.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/graphtag/pkg/models"
)

// DefaultPattern matches the per-chunk record files.
const DefaultPattern = "*.json"

// Loader reads record files and converts them to chunks.
type Loader struct {
	counter TokenCounter
	pattern string
}

// NewLoader creates a loader for files matching pattern.
// counter may be nil, in which case token counts stay zero.
func NewLoader(pattern string, counter TokenCounter) *Loader {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Loader{
		pattern: pattern,
		counter: counter,
	}
}

// Pattern returns the glob pattern used to select record files.
func (l *Loader) Pattern() string {
	return l.pattern
}

// Matches reports whether a file name is selected by the loader pattern.
func (l *Loader) Matches(path string) bool {
	ok, err := filepath.Match(l.pattern, filepath.Base(path))
	return err == nil && ok
}

// Files lists the record files in dir, sorted by name.
func (l *Loader) Files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, l.pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", l.pattern, err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir reads every matching file in dir as one record. Chunk ids follow
// the sorted file order.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]models.Chunk, error) {
	files, err := l.Files(dir)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("dir", dir).Int("files", len(files)).Msg("Found record files")

	records := make([]models.Record, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := readRecordFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	chunks, err := l.toChunks(records)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", dir).Int("chunks", len(chunks)).Msg("Loaded records")
	return chunks, nil
}

// LoadRecords reads records from r. The stream may be a JSON array of
// records or a sequence of JSON objects (for example JSON lines).
func (l *Loader) LoadRecords(ctx context.Context, r io.Reader) ([]models.Chunk, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if err == io.EOF {
			return []models.Chunk{}, nil
		}
		return nil, fmt.Errorf("read records: %w", err)
	}

	var records []models.Record
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
	} else {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var rec models.Record
			err := dec.Decode(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("decode record %d: %w", len(records), err)
			}
			records = append(records, rec)
		}
	}

	return l.toChunks(records)
}

func (l *Loader) toChunks(records []models.Record) ([]models.Chunk, error) {
	chunks := models.ChunksFromRecords(records)
	if l.counter == nil {
		return chunks, nil
	}
	for i := range chunks {
		n, err := l.counter.Count(chunks[i].Text)
		if err != nil {
			return nil, fmt.Errorf("count tokens for chunk %d: %w", i, err)
		}
		chunks[i].Tokens = n
	}
	return chunks, nil
}

func readRecordFile(path string) (models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Record{}, fmt.Errorf("read %s: %w", path, err)
	}
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if bytes.ContainsAny(b, " \t\r\n") {
			if _, err := br.ReadByte(); err != nil {
				return 0, err
			}
			continue
		}
		return b[0], nil
	}
}
