package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
	"github.com/seekstack/codeseek/internal/ignore"
)

func newTestScanner(t *testing.T, root string, opts Options) *Scanner {
	t.Helper()
	resolver, err := ignore.NewResolver(root)
	require.NoError(t, err)
	s, err := New(root, resolver, opts)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func lines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		b.WriteString("line\n")
	}
	return b.String()
}

func TestScanner_ScanFile_ChunksByLineRange(t *testing.T) {
	// Given a 100-line file chunked at 40 lines with no overlap
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), lines(100))
	s := newTestScanner(t, root, Options{ChunkLines: 40})

	res := s.ScanFile("main.go")
	require.NoError(t, res.Err)

	// Then ranges are 1-indexed, inclusive, and cover every line
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, 1, res.Chunks[0].StartLine)
	assert.Equal(t, 40, res.Chunks[0].EndLine)
	assert.Equal(t, 41, res.Chunks[1].StartLine)
	assert.Equal(t, 80, res.Chunks[1].EndLine)
	assert.Equal(t, 81, res.Chunks[2].StartLine)
	assert.Equal(t, 100, res.Chunks[2].EndLine)
	assert.NotEmpty(t, res.ContentHash)
}

func TestScanner_ScanFile_OverlapSharesLines(t *testing.T) {
	root := t.TempDir()
	var b strings.Builder
	for i := 1; i <= 20; i++ {
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("\n")
	}
	writeFile(t, filepath.Join(root, "a.txt"), b.String())
	s := newTestScanner(t, root, Options{ChunkLines: 10, OverlapLines: 2})

	res := s.ScanFile("a.txt")
	require.NoError(t, res.Err)

	// The two trailing lines fold into the second chunk instead of
	// producing a third chunk that is mostly overlap
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 1, res.Chunks[0].StartLine)
	assert.Equal(t, 10, res.Chunks[0].EndLine)
	assert.Equal(t, 9, res.Chunks[1].StartLine)
	assert.Equal(t, 20, res.Chunks[1].EndLine)
}

func TestScanner_ScanFile_TrailingChunkKeptWhenTailIsNew(t *testing.T) {
	// Given 24 lines at chunk 10 / overlap 2: the tail past line 18
	// carries six new lines, more than the overlap, so it stays its
	// own chunk
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), lines(24))
	s := newTestScanner(t, root, Options{ChunkLines: 10, OverlapLines: 2})

	res := s.ScanFile("a.txt")
	require.NoError(t, res.Err)

	require.Len(t, res.Chunks, 3)
	assert.Equal(t, 17, res.Chunks[2].StartLine)
	assert.Equal(t, 24, res.Chunks[2].EndLine)

	// Every line is covered
	last := res.Chunks[len(res.Chunks)-1]
	assert.Equal(t, 24, last.EndLine)
}

func TestScanner_ScanFile_StableChunkIDs(t *testing.T) {
	// Given the same content scanned twice
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), lines(10))
	s := newTestScanner(t, root, Options{ChunkLines: 40})

	first := s.ScanFile("main.go")
	second := s.ScanFile("main.go")
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)

	// Then IDs are identical across scans
	require.Len(t, first.Chunks, 1)
	assert.Equal(t, first.Chunks[0].ID, second.Chunks[0].ID)
	assert.Equal(t, first.ContentHash, second.ContentHash)

	// And change when the content changes
	writeFile(t, filepath.Join(root, "main.go"), lines(10)+"extra\n")
	third := s.ScanFile("main.go")
	require.NoError(t, third.Err)
	assert.NotEqual(t, first.Chunks[0].ID, third.Chunks[0].ID)
}

func TestScanner_ScanFile_OversizedFileSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "big.txt"), strings.Repeat("a", 2048))
	s := newTestScanner(t, root, Options{ChunkLines: 40, MaxFileSize: 1024})

	res := s.ScanFile("big.txt")
	require.Error(t, res.Err)
	assert.Equal(t, seekerrors.ErrCodeFileTooLarge, seekerrors.GetCode(res.Err))
	assert.Empty(t, res.Chunks)
}

func TestScanner_ScanFile_BinarySkipped(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), []byte{'a', 0, 'b'}, 0o644))
	s := newTestScanner(t, root, Options{ChunkLines: 40})

	res := s.ScanFile("bin.dat")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Chunks)
}

func TestScanner_ScanFile_Missing(t *testing.T) {
	root := t.TempDir()
	s := newTestScanner(t, root, Options{ChunkLines: 40})

	res := s.ScanFile("gone.go")
	require.Error(t, res.Err)
	assert.Equal(t, seekerrors.ErrCodeFileNotFound, seekerrors.GetCode(res.Err))
}

func TestScanner_Scan_WalksWorkspaceRespectingIgnores(t *testing.T) {
	// Given a workspace with an ignored directory
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "vendor/\n")
	writeFile(t, filepath.Join(root, "main.go"), lines(5))
	writeFile(t, filepath.Join(root, "sub", "util.go"), lines(5))
	writeFile(t, filepath.Join(root, "vendor", "dep.go"), lines(5))

	s := newTestScanner(t, root, Options{ChunkLines: 40})

	seen := map[string]bool{}
	for res := range s.Scan(context.Background(), nil) {
		require.NoError(t, res.Err)
		seen[res.Path] = true
	}

	assert.True(t, seen["main.go"])
	assert.True(t, seen["sub/util.go"])
	assert.False(t, seen["vendor/dep.go"])
}

func TestScanner_Scan_ExplicitPathsFiltered(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")
	writeFile(t, filepath.Join(root, "main.go"), lines(5))
	writeFile(t, filepath.Join(root, "app.log"), lines(5))

	s := newTestScanner(t, root, Options{ChunkLines: 40})

	paths := []string{
		filepath.Join(root, "main.go"),
		filepath.Join(root, "app.log"),
	}
	var got []string
	for res := range s.Scan(context.Background(), paths) {
		got = append(got, res.Path)
	}

	assert.Equal(t, []string{"main.go"}, got)
}

func TestScanner_Scan_CancelledContext(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, "f", string(rune('a'+i))+".go"), lines(5))
	}
	s := newTestScanner(t, root, Options{ChunkLines: 40})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count := 0
	for range s.Scan(ctx, nil) {
		count++
	}
	// The channel closes without emitting all files
	assert.Less(t, count, 20)
}

func TestBuildBatches_RespectsBudgets(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Content: strings.Repeat("x", 100)},
		{ID: "b", Content: strings.Repeat("x", 100)},
		{ID: "c", Content: strings.Repeat("x", 100)},
	}

	batches, stats := BuildBatches(chunks, 200, 250)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Chunks, 2)
	assert.Len(t, batches[1].Chunks, 1)
	assert.Equal(t, 3, stats.Batched)
	assert.Equal(t, 0, stats.Oversized)
}

func TestBuildBatches_OversizedChunkSkippedAndCounted(t *testing.T) {
	chunks := []Chunk{
		{ID: "small", Content: strings.Repeat("x", 50)},
		{ID: "huge", Content: strings.Repeat("x", 500)},
		{ID: "small2", Content: strings.Repeat("x", 50)},
	}

	batches, stats := BuildBatches(chunks, 200, 1000)

	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Chunks, 2)
	assert.Equal(t, 2, stats.Batched)
	assert.Equal(t, 1, stats.Oversized)
}

func TestBuildBatches_Empty(t *testing.T) {
	batches, stats := BuildBatches(nil, 100, 1000)
	assert.Empty(t, batches)
	assert.Equal(t, 0, stats.Batched)
}
