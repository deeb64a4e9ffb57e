package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/thebtf/graphtag/internal/config"
	"github.com/thebtf/graphtag/pkg/models"
)

// WriteComponentMap writes m as connected_components.json inside dir and
// returns the file path. The file is replaced atomically, so readers never
// observe a partial map.
func WriteComponentMap(dir string, m models.ComponentMap) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	raw, err := m.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode component map: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", fmt.Errorf("indent component map: %w", err)
	}
	buf.WriteByte('\n')

	tmp, err := os.CreateTemp(dir, ".connected_components-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write component map: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync component map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close component map: %w", err)
	}

	path := filepath.Join(dir, config.OutputFileName)
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return "", fmt.Errorf("rename component map: %w", err)
	}
	return path, nil
}

// ReadComponentMap loads a map previously written by WriteComponentMap.
func ReadComponentMap(path string) (models.ComponentMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read component map: %w", err)
	}
	var m models.ComponentMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode component map: %w", err)
	}
	return m, nil
}
