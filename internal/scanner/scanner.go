// Package scanner walks the workspace, reads eligible files, and cuts
// them into line-range chunks sized for embedding.
package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
	"github.com/seekstack/codeseek/internal/ignore"
)

// Options configures a Scanner.
type Options struct {
	// ChunkLines is the number of lines per chunk.
	ChunkLines int

	// OverlapLines is the number of lines shared between adjacent chunks.
	OverlapLines int

	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64

	// Workers bounds concurrent file reads. 0 uses NumCPU.
	Workers int
}

// Scanner reads and chunks workspace files.
type Scanner struct {
	root     string
	resolver *ignore.Resolver
	opts     Options
}

// New creates a Scanner for the workspace rooted at root. The resolver
// decides file eligibility.
func New(root string, resolver *ignore.Resolver, opts Options) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root: %w", err)
	}
	if opts.ChunkLines <= 0 {
		opts.ChunkLines = 40
	}
	if opts.OverlapLines < 0 || opts.OverlapLines >= opts.ChunkLines {
		opts.OverlapLines = 0
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 1 << 20
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Scanner{root: abs, resolver: resolver, opts: opts}, nil
}

// Scan reads and chunks the given paths. When paths is empty the whole
// workspace is walked. Results stream on the returned channel, which is
// closed once all work finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, paths []string) <-chan FileResult {
	results := make(chan FileResult, 64)

	go func() {
		defer close(results)

		var files []string
		if len(paths) == 0 {
			files = s.walk(ctx)
		} else {
			files = s.resolver.FilterAllowed(paths)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Workers)

		for _, path := range files {
			g.Go(func() error {
				res := s.scanFile(path)
				select {
				case results <- res:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}

		_ = g.Wait()
	}()

	return results
}

// ScanFile reads and chunks a single file synchronously.
func (s *Scanner) ScanFile(path string) FileResult {
	return s.scanFile(path)
}

// walk collects all eligible file paths under the root.
func (s *Scanner) walk(ctx context.Context) []string {
	var files []string
	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // skip unreadable entries
		}

		relPath, relErr := filepath.Rel(s.root, path)
		if relErr != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if !s.resolver.IsAllowed(path) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !s.resolver.IsAllowed(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	return files
}

// scanFile reads one file and produces its chunks.
func (s *Scanner) scanFile(path string) FileResult {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, path)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return FileResult{Path: rel, Err: seekerrors.New(
				seekerrors.ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", rel), err)}
		}
		return FileResult{Path: rel, Err: seekerrors.New(
			seekerrors.ErrCodeFileRead, fmt.Sprintf("failed to stat %s", rel), err)}
	}

	if info.Size() > s.opts.MaxFileSize {
		slog.Warn("skipping oversized file",
			slog.String("path", rel),
			slog.Int64("size", info.Size()),
			slog.Int64("limit", s.opts.MaxFileSize))
		return FileResult{Path: rel, Err: seekerrors.Newf(
			seekerrors.ErrCodeFileTooLarge, "file %s exceeds size limit (%d > %d bytes)",
			rel, info.Size(), s.opts.MaxFileSize)}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return FileResult{Path: rel, Err: seekerrors.New(
			seekerrors.ErrCodeFileRead, fmt.Sprintf("failed to read %s", rel), err)}
	}

	if isBinary(data) {
		slog.Debug("skipping binary file", slog.String("path", rel))
		return FileResult{Path: rel}
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	return FileResult{
		Path:        rel,
		Chunks:      chunkLines(rel, string(data), hash, s.opts.ChunkLines, s.opts.OverlapLines),
		ContentHash: hash,
	}
}

// chunkLines cuts content into line-range chunks. Ranges are 1-indexed
// inclusive; adjacent chunks share overlap lines.
func chunkLines(relPath, content, contentHash string, chunkLines, overlap int) []Chunk {
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	// A trailing newline produces one empty phantom line
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	step := chunkLines - overlap
	var chunks []Chunk
	for start := 0; start < len(lines); start += step {
		end := start + chunkLines
		if end > len(lines) {
			end = len(lines)
		} else if len(lines)-end <= overlap {
			// A trailing chunk adding no more lines than the overlap
			// would be mostly duplicate; fold it into this one.
			end = len(lines)
		}

		chunk := Chunk{
			FilePath:  relPath,
			Content:   strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
		}
		chunk.ID = ChunkID(relPath, chunk.StartLine, chunk.EndLine, contentHash)
		chunks = append(chunks, chunk)

		if end == len(lines) {
			break
		}
	}
	return chunks
}

// ChunkID derives a stable chunk identifier from the file path, line
// range, and content hash.
func ChunkID(relPath string, startLine, endLine int, contentHash string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d-%d:%s", relPath, startLine, endLine, contentHash))
	return hex.EncodeToString(sum[:16])
}

// isBinary checks for null bytes in the first 512 bytes.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	return bytes.Contains(data[:n], []byte{0})
}
