// Package models contains domain models for graphtag.
package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// Record is one classified chunk as produced by the topic classification step.
// Field names follow the persisted interop format.
type Record struct {
	Chunk          string   `json:"chunk"`
	SourceFile     string   `json:"source_file"`
	Classification []string `json:"classification"`
}

// Chunk is a unit of text with its ordered topic labels, most relevant first.
// ID is the dense ingestion index and is stable for one pipeline run.
type Chunk struct {
	Text   string   `json:"text"`
	Source string   `json:"source"`
	Topics []string `json:"topics"`
	ID     int      `json:"id"`
	Tokens int      `json:"tokens,omitempty"`
}

// HasTopics reports whether the chunk can take part in scoring and edge building.
func (c *Chunk) HasTopics() bool {
	return len(c.Topics) > 0
}

// ChunksFromRecords converts records to chunks, assigning ids in slice order.
func ChunksFromRecords(records []Record) []Chunk {
	chunks := make([]Chunk, len(records))
	for i, r := range records {
		chunks[i] = Chunk{
			ID:     i,
			Text:   r.Chunk,
			Source: r.SourceFile,
			Topics: r.Classification,
		}
	}
	return chunks
}

// ComponentMap maps a chunk id to its zero-based cluster id.
// It is persisted as a JSON object keyed by the stringified chunk id.
type ComponentMap map[int]int

// MarshalJSON encodes the map with string keys in ascending id order.
func (m ComponentMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	ids := m.IDs()
	buf := make([]byte, 0, len(ids)*8+2)
	buf = append(buf, '{')
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = strconv.AppendInt(buf, int64(id), 10)
		buf = append(buf, '"', ':')
		buf = strconv.AppendInt(buf, int64(m[id]), 10)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON decodes a map with stringified integer keys.
func (m *ComponentMap) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(ComponentMap, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("component map key %q: %w", k, err)
		}
		out[id] = v
	}
	*m = out
	return nil
}

// IDs returns the chunk ids in ascending order.
func (m ComponentMap) IDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Members groups chunk ids by cluster id. Member lists are ascending.
func (m ComponentMap) Members() map[int][]int {
	out := make(map[int][]int)
	for _, id := range m.IDs() {
		out[m[id]] = append(out[m[id]], id)
	}
	return out
}

// JSONStringArray is a []string stored as a JSON array in a text column.
type JSONStringArray []string

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for JSONStringArray: %T", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
