package ignore

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PrimaryIgnoreFile is the project-level ignore file. When present and
// non-empty it takes exclusive precedence over .gitignore files.
const PrimaryIgnoreFile = ".codeseekignore"

// source identifies which pattern tier is active.
type source string

const (
	sourcePrimary   source = "codeseekignore"
	sourceGitignore source = "gitignore"
	sourceDefaults  source = "defaults"
)

// defaultPatterns apply when no ignore file is found.
var defaultPatterns = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"__pycache__/",
	".venv/",
	".idea/",
	".vscode/",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
}

// alwaysIgnored are excluded in every tier: internal state must never
// be indexed, and the .git object store is noise.
var alwaysIgnored = []string{
	PrimaryIgnoreFile,
	".codeseek/",
	".git/",
}

// Resolver decides whether workspace paths are eligible for indexing.
// Pattern sources are layered by precedence: the primary ignore file
// (exclusive when non-empty), then the union of all .gitignore files,
// then built-in defaults.
type Resolver struct {
	root string

	mu      sync.RWMutex
	matcher *Matcher
	active  source
	files   int
}

// NewResolver builds a Resolver for the workspace rooted at root.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	r := &Resolver{root: abs}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the workspace root the resolver was built for.
func (r *Resolver) Root() string {
	return r.root
}

// Reload rebuilds the rule set from the filesystem. It is called on
// startup and whenever the watcher reports an ignore file change.
func (r *Resolver) Reload() error {
	matcher, active, files := r.build()

	r.mu.Lock()
	r.matcher = matcher
	r.active = active
	r.files = files
	r.mu.Unlock()

	slog.Debug("ignore rules rebuilt",
		slog.String("source", string(active)),
		slog.Int("files", files),
		slog.Int("rules", matcher.RuleCount()))
	return nil
}

// build assembles the matcher for the highest-precedence tier that
// yields patterns. Read errors demote to the next tier.
func (r *Resolver) build() (*Matcher, source, int) {
	m := NewMatcher()
	for _, p := range alwaysIgnored {
		m.AddPattern(p)
	}

	// Tier 1: primary ignore file, exclusive when non-empty
	primaryPath := filepath.Join(r.root, PrimaryIgnoreFile)
	if data, err := os.ReadFile(primaryPath); err == nil {
		if patterns := ParsePatterns(string(data)); len(patterns) > 0 {
			for _, p := range patterns {
				m.AddPattern(p)
			}
			return m, sourcePrimary, 1
		}
	}

	// Tier 2: union of every .gitignore in the tree, root-first
	files := r.addGitignores(m)
	if files > 0 {
		return m, sourceGitignore, files
	}

	// Tier 3: built-in defaults
	for _, p := range defaultPatterns {
		m.AddPattern(p)
	}
	return m, sourceDefaults, 0
}

// addGitignores walks the tree root-first, loading each .gitignore under
// its directory as base. Returns the number of files loaded.
func (r *Resolver) addGitignores(m *Matcher) int {
	files := 0
	_ = filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if d.IsDir() {
			// Skip heavy directories that never carry relevant rules
			name := d.Name()
			if path != r.root && (name == ".git" || name == "node_modules" || name == ".codeseek") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		base, relErr := filepath.Rel(r.root, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if base == "." {
			base = ""
		}
		if err := m.AddFromFile(path, filepath.ToSlash(base)); err != nil {
			slog.Warn("skipping unreadable gitignore",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		files++
		return nil
	})
	return files
}

// IsAllowed reports whether path is eligible for indexing. Paths
// outside the workspace root are allowed so callers embedding foreign
// paths are not silently dropped here.
func (r *Resolver) IsAllowed(path string) bool {
	rel, ok := r.relative(path)
	if !ok {
		return true
	}

	isDir := false
	if info, err := os.Stat(filepath.Join(r.root, rel)); err == nil {
		isDir = info.IsDir()
	}

	r.mu.RLock()
	m := r.matcher
	r.mu.RUnlock()

	return !m.Match(rel, isDir)
}

// FilterAllowed returns the subset of paths eligible for indexing.
// On internal error it returns an empty slice rather than passing
// unvetted paths through.
func (r *Resolver) FilterAllowed(paths []string) []string {
	allowed := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, ok := r.relative(p)
		if !ok {
			continue
		}
		r.mu.RLock()
		m := r.matcher
		r.mu.RUnlock()
		if !m.Match(rel, false) {
			allowed = append(allowed, p)
		}
	}
	return allowed
}

// Explain describes the active rule source for diagnostics.
func (r *Resolver) Explain() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch r.active {
	case sourcePrimary:
		return fmt.Sprintf("using %s (exclusive, %d rules)", PrimaryIgnoreFile, r.matcher.RuleCount())
	case sourceGitignore:
		return fmt.Sprintf("using %d .gitignore file(s) (%d rules)", r.files, r.matcher.RuleCount())
	default:
		return fmt.Sprintf("using built-in defaults (%d rules)", r.matcher.RuleCount())
	}
}

// RuleCount returns the number of active ignore rules.
func (r *Resolver) RuleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matcher.RuleCount()
}

// IsIgnoreFile reports whether path is an ignore file whose change
// should trigger a rule reload.
func (r *Resolver) IsIgnoreFile(path string) bool {
	name := filepath.Base(path)
	return name == PrimaryIgnoreFile || name == ".gitignore"
}

// relative converts path to a slash-separated path relative to the
// workspace root. ok is false for paths outside the root.
func (r *Resolver) relative(path string) (string, bool) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, path)
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if rel == "." {
		rel = ""
	}
	return rel, true
}
