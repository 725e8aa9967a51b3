package manifest

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestResult_Record(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   []string
	}{
		{
			name:   "smaller",
			result: Succeeded("in/a.png", "out/a.webp", 4096, 1024, 1),
			want:   []string{"in/a.png", "out/a.webp", "success", "", "4", "1", "-0.75", "1"},
		},
		{
			name:   "rounded up to the next kilobyte",
			result: Succeeded("in/b.gif", "out/b.webp", 1025, 3000, 12),
			want:   []string{"in/b.gif", "out/b.webp", "success", "", "2", "3", "0.50", "12"},
		},
		{
			name:   "empty source",
			result: Succeeded("in/c.png", "out/c.webp", 0, 10, 1),
			want:   []string{"in/c.png", "out/c.webp", "success", "", "0", "1", "", "1"},
		},
		{
			name:   "failure",
			result: Failed("in/d.png", 2048, errors.New("error decoding png: unexpected EOF")),
			want:   []string{"in/d.png", "", "failure", "error decoding png: unexpected EOF", "2", "", "", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.record())
		})
	}
}

func TestFailed_NilError(t *testing.T) {
	r := Failed("x", 0, nil)
	assert.Equal(t, StatusFailure, r.Status)
	assert.NotEmpty(t, r.Error)
	assert.Empty(t, r.Output)
}

func TestResult_Bigger(t *testing.T) {
	assert.True(t, Succeeded("a", "b", 10, 20, 1).Bigger())
	assert.False(t, Succeeded("a", "b", 20, 10, 1).Bigger())
	assert.False(t, Failed("a", 10, errors.New("boom")).Bigger())
}

func TestManifest_CountsAndTotals(t *testing.T) {
	m := New()
	m.Add(Succeeded("a", "a.webp", 100, 40, 1))
	m.Add(Failed("b", 7, errors.New("boom")))
	m.Add(Succeeded("c", "c.webp", 200, 60, 3))

	ok, failed := m.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	orig, webp := m.Totals()
	assert.Equal(t, int64(300), orig)
	assert.Equal(t, int64(100), webp)

	assert.Equal(t, 3, m.Len())
	results := m.Results()
	results[0].Source = "mutated"
	assert.Equal(t, "a", m.Results()[0].Source)
}

func TestManifest_WriteFile(t *testing.T) {
	dir := t.TempDir()

	m := New()
	m.Add(Succeeded("in/a.png", filepath.Join(dir, "a.webp"), 2048, 1024, 1))
	m.Add(Failed("in/b.txt", 3, errors.New("unsupported file extension \".txt\"")))

	path, err := m.WriteFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "success", rows[1][2])
	assert.Equal(t, "failure", rows[2][2])
	assert.Equal(t, `unsupported file extension ".txt"`, rows[2][3])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestManifest_WriteFileIsDeterministic(t *testing.T) {
	dir := t.TempDir()

	m := New()
	m.Add(Succeeded("in/a.png", "out/a.webp", 5000, 1200, 1))
	m.Add(Failed("in/b.png", 10, errors.New("bad, \"quoted\" data")))

	path, err := m.WriteFile(dir)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = m.WriteFile(dir)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestManifest_WriteFileMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	m := New()
	m.Add(Succeeded("a", "b", 1, 1, 1))

	_, err := m.WriteFile(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
