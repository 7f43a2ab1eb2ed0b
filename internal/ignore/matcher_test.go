package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match_SimplePatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "exact filename match", pattern: "foo.txt", path: "foo.txt", isDir: false, expected: true},
		{name: "exact filename no match", pattern: "foo.txt", path: "bar.txt", isDir: false, expected: false},
		{name: "filename in subdir", pattern: "foo.txt", path: "src/foo.txt", isDir: false, expected: true},
		{name: "filename deep nested", pattern: "foo.txt", path: "a/b/c/foo.txt", isDir: false, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher()
			m.AddPattern(tt.pattern)
			got := m.Match(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Match_WildcardPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "*.log matches .log", pattern: "*.log", path: "error.log", isDir: false, expected: true},
		{name: "*.log matches deep .log", pattern: "*.log", path: "logs/error.log", isDir: false, expected: true},
		{name: "*.log no match .txt", pattern: "*.log", path: "error.txt", isDir: false, expected: false},
		{name: "test* matches testfile", pattern: "test*", path: "testfile.go", isDir: false, expected: true},
		{name: "? matches one char", pattern: "a?.go", path: "ab.go", isDir: false, expected: true},
		{name: "? no match two chars", pattern: "a?.go", path: "abc.go", isDir: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher()
			m.AddPattern(tt.pattern)
			got := m.Match(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Match_DoubleStarPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		expected bool
	}{
		{name: "leading **/ matches root", pattern: "**/foo.txt", path: "foo.txt", expected: true},
		{name: "leading **/ matches nested", pattern: "**/foo.txt", path: "a/b/foo.txt", expected: true},
		{name: "trailing /** matches contents", pattern: "logs/**", path: "logs/2024/jan.log", expected: true},
		{name: "middle ** matches intervening dirs", pattern: "a/**/b.txt", path: "a/x/y/b.txt", expected: true},
		{name: "middle ** no match sibling", pattern: "a/**/b.txt", path: "c/b.txt", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher()
			m.AddPattern(tt.pattern)
			got := m.Match(tt.path, false)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Match_DirectoryOnlyPatterns(t *testing.T) {
	m := NewMatcher()
	m.AddPattern("build/")

	// Given a directory-only pattern
	// When matching the directory itself and files inside it
	assert.True(t, m.Match("build", true), "directory itself should match")
	assert.True(t, m.Match("build/output.bin", false), "files inside should match")
	assert.False(t, m.Match("build", false), "a plain file named build should not match")
}

func TestMatcher_Match_NegationPatterns(t *testing.T) {
	// Given an ignore-all pattern with a negated exception
	m := NewMatcher()
	m.AddPattern("*.log")
	m.AddPattern("!important.log")

	// Then the exception is re-included and everything else stays ignored
	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("important.log", false))
}

func TestMatcher_Match_AnchoredPatterns(t *testing.T) {
	m := NewMatcher()
	m.AddPattern("/config.yaml")

	assert.True(t, m.Match("config.yaml", false), "root-level file should match")
	assert.False(t, m.Match("sub/config.yaml", false), "nested file should not match anchored pattern")
}

func TestMatcher_Match_BasePrefix(t *testing.T) {
	// Given a rule loaded from a nested ignore file
	m := NewMatcher()
	m.AddPatternWithBase("*.tmp", "sub")

	// Then the rule only applies under its base directory
	assert.True(t, m.Match("sub/cache.tmp", false))
	assert.False(t, m.Match("cache.tmp", false))
	assert.False(t, m.Match("other/cache.tmp", false))
}

func TestMatcher_AddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	content := "# comment\n\n*.log\nbuild/\n!keep.log\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewMatcher()
	require.NoError(t, m.AddFromFile(path, ""))

	assert.Equal(t, 3, m.RuleCount(), "comments and blank lines are skipped")
	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestParsePatterns(t *testing.T) {
	content := "# header\n\n*.log\n  \nbuild/\n\\#literal\n"
	patterns := ParsePatterns(content)
	assert.Equal(t, []string{"*.log", "build/", `\#literal`}, patterns)
}
