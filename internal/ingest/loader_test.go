package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

type fixedCounter struct {
	err error
}

func (f fixedCounter) Count(text string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(strings.Fields(text)), nil
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{"chunk": "second chunk text", "source_file": "doc2.pdf", "classification": ["B", "A"]}`)
	writeFile(t, dir, "a.json", `{"chunk": "first", "source_file": "doc1.pdf", "classification": ["A"]}`)
	writeFile(t, dir, "notes.txt", `not a record`)

	loader := NewLoader("", fixedCounter{})
	chunks, err := loader.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	// ids follow sorted file names
	assert.Equal(t, 0, chunks[0].ID)
	assert.Equal(t, "first", chunks[0].Text)
	assert.Equal(t, "doc1.pdf", chunks[0].Source)
	assert.Equal(t, []string{"A"}, chunks[0].Topics)
	assert.Equal(t, 1, chunks[0].Tokens)

	assert.Equal(t, 1, chunks[1].ID)
	assert.Equal(t, []string{"B", "A"}, chunks[1].Topics)
	assert.Equal(t, 3, chunks[1].Tokens)
}

func TestLoadDir_CustomPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.rec.json", `{"chunk": "a", "source_file": "s", "classification": ["A"]}`)
	writeFile(t, dir, "y.json", `{"chunk": "b", "source_file": "s", "classification": ["A"]}`)

	loader := NewLoader("*.rec.json", nil)
	chunks, err := loader.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Tokens)

	assert.True(t, loader.Matches("/some/dir/z.rec.json"))
	assert.False(t, loader.Matches("/some/dir/z.json"))
}

func TestLoadDir_Errors(t *testing.T) {
	loader := NewLoader(DefaultPattern, nil)

	_, err := loader.LoadDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"chunk": `)
	_, err = loader.LoadDir(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")

	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	_, err = loader.LoadDir(context.Background(), file)
	assert.Error(t, err)
}

func TestLoadDir_EmptyDirectory(t *testing.T) {
	chunks, err := NewLoader("", nil).LoadDir(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestLoadDir_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"chunk": "a", "source_file": "s", "classification": ["A"]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader("", nil).LoadDir(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDir_CounterError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"chunk": "a", "source_file": "s", "classification": ["A"]}`)

	boom := errors.New("boom")
	_, err := NewLoader("", fixedCounter{err: boom}).LoadDir(context.Background(), dir)
	assert.ErrorIs(t, err, boom)
}

func TestLoadRecords(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name:  "json array",
			input: `[{"chunk": "a", "source_file": "s1", "classification": ["A"]}, {"chunk": "b", "source_file": "s2", "classification": []}]`,
			want:  2,
		},
		{
			name: "json lines",
			input: `{"chunk": "a", "source_file": "s1", "classification": ["A"]}
{"chunk": "b", "source_file": "s2", "classification": ["B"]}
{"chunk": "c", "source_file": "s3", "classification": ["A", "B"]}
`,
			want: 3,
		},
		{
			name:  "leading whitespace before array",
			input: "\n  [{\"chunk\": \"a\", \"source_file\": \"s\", \"classification\": [\"A\"]}]",
			want:  1,
		},
		{
			name:  "empty stream",
			input: "",
			want:  0,
		},
		{
			name:    "malformed line",
			input:   `{"chunk": "a"} {oops}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := NewLoader("", nil).LoadRecords(context.Background(), strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, chunks, tt.want)
			for i, c := range chunks {
				assert.Equal(t, i, c.ID)
			}
		})
	}
}

func TestTiktokenCounter(t *testing.T) {
	counter, err := NewTiktokenCounter()
	require.NoError(t, err)

	n, err := counter.Count("Graphs group related chunks together.")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	n, err = counter.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
