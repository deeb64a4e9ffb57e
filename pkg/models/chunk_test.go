package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksFromRecords(t *testing.T) {
	records := []Record{
		{Chunk: "first", SourceFile: "a.txt", Classification: []string{"A", "B"}},
		{Chunk: "second", SourceFile: "b.txt"},
	}

	chunks := ChunksFromRecords(records)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].ID)
	assert.Equal(t, "first", chunks[0].Text)
	assert.Equal(t, "a.txt", chunks[0].Source)
	assert.Equal(t, []string{"A", "B"}, chunks[0].Topics)
	assert.True(t, chunks[0].HasTopics())

	assert.Equal(t, 1, chunks[1].ID)
	assert.False(t, chunks[1].HasTopics())
}

func TestRecordDecoding(t *testing.T) {
	data := []byte(`{"chunk": "text", "source_file": "doc.md", "classification": ["Sports", "Politics"]}`)

	var r Record
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, "text", r.Chunk)
	assert.Equal(t, "doc.md", r.SourceFile)
	assert.Equal(t, []string{"Sports", "Politics"}, r.Classification)
}

func TestComponentMapJSON(t *testing.T) {
	m := ComponentMap{2: 1, 0: 0, 10: 1, 1: 0}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"0":0,"1":0,"2":1,"10":1}`, string(data))

	var decoded ComponentMap
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m, decoded)
}

func TestComponentMapUnmarshal_BadKey(t *testing.T) {
	var m ComponentMap
	err := json.Unmarshal([]byte(`{"x":1}`), &m)
	assert.Error(t, err)
}

func TestComponentMapMembers(t *testing.T) {
	m := ComponentMap{0: 0, 1: 1, 2: 0, 3: 2}

	members := m.Members()
	assert.Equal(t, []int{0, 2}, members[0])
	assert.Equal(t, []int{1}, members[1])
	assert.Equal(t, []int{3}, members[2])
	assert.Equal(t, []int{0, 1, 2, 3}, m.IDs())
}

// TestJSONStringArray tests JSONStringArray scanning.
func TestJSONStringArray(t *testing.T) {
	tests := []struct {
		input    interface{}
		name     string
		expected JSONStringArray
		wantErr  bool
	}{
		{
			name:     "nil input",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "json array string",
			input:    `["A", "B"]`,
			expected: JSONStringArray{"A", "B"},
		},
		{
			name:     "json array bytes",
			input:    []byte(`["a", "b", "c"]`),
			expected: JSONStringArray{"a", "b", "c"},
		},
		{
			name:    "unsupported type",
			input:   42,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var arr JSONStringArray
			err := arr.Scan(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, arr)
			}
		})
	}
}

func TestJSONStringArrayValue(t *testing.T) {
	v, err := JSONStringArray{"x", "y"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["x","y"]`, v)

	v, err = JSONStringArray(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
