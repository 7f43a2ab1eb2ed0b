package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolver_PrimaryFileTakesExclusivePrecedence(t *testing.T) {
	// Given a workspace with both a primary ignore file and a .gitignore
	root := t.TempDir()
	writeFile(t, filepath.Join(root, PrimaryIgnoreFile), "*.secret\n")
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")
	writeFile(t, filepath.Join(root, "app.log"), "log")
	writeFile(t, filepath.Join(root, "key.secret"), "key")

	r, err := NewResolver(root)
	require.NoError(t, err)

	// Then only the primary file's patterns apply
	assert.False(t, r.IsAllowed(filepath.Join(root, "key.secret")))
	assert.True(t, r.IsAllowed(filepath.Join(root, "app.log")), ".gitignore rules must not leak into primary tier")
	assert.Contains(t, r.Explain(), PrimaryIgnoreFile)
}

func TestResolver_EmptyPrimaryFallsBackToGitignore(t *testing.T) {
	// Given a primary file with only comments and whitespace
	root := t.TempDir()
	writeFile(t, filepath.Join(root, PrimaryIgnoreFile), "# nothing here\n\n")
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	// Then .gitignore patterns apply
	assert.False(t, r.IsAllowed(filepath.Join(root, "app.log")))
	assert.Contains(t, r.Explain(), ".gitignore")
}

func TestResolver_NestedGitignoreScopedToItsDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")
	writeFile(t, filepath.Join(root, "sub", ".gitignore"), "*.tmp\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	assert.False(t, r.IsAllowed(filepath.Join(root, "sub", "cache.tmp")))
	assert.True(t, r.IsAllowed(filepath.Join(root, "cache.tmp")), "nested rules must not apply at the root")
	assert.False(t, r.IsAllowed(filepath.Join(root, "deep", "nested", "app.log")), "root rules apply everywhere")
}

func TestResolver_DefaultsWhenNoIgnoreFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main")

	r, err := NewResolver(root)
	require.NoError(t, err)

	assert.False(t, r.IsAllowed(filepath.Join(root, "node_modules", "x", "index.js")))
	assert.False(t, r.IsAllowed(filepath.Join(root, "vendor", "dep.go")))
	assert.True(t, r.IsAllowed(filepath.Join(root, "main.go")))
	assert.Contains(t, r.Explain(), "defaults")
}

func TestResolver_AlwaysIgnoresInternalPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, PrimaryIgnoreFile), "*.secret\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	assert.False(t, r.IsAllowed(filepath.Join(root, PrimaryIgnoreFile)), "the ignore file itself is never indexed")
	assert.False(t, r.IsAllowed(filepath.Join(root, ".codeseek", "vectors.hnsw")))
	assert.False(t, r.IsAllowed(filepath.Join(root, ".git", "HEAD")))
}

func TestResolver_OutsideRootFailsOpen(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "elsewhere.go")
	assert.True(t, r.IsAllowed(outside))
}

func TestResolver_FilterAllowed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	paths := []string{
		filepath.Join(root, "main.go"),
		filepath.Join(root, "app.log"),
		filepath.Join(root, "sub", "util.go"),
	}
	got := r.FilterAllowed(paths)
	assert.Equal(t, []string{paths[0], paths[2]}, got)
}

func TestResolver_ReloadPicksUpNewRules(t *testing.T) {
	// Given a resolver built before the primary ignore file existed
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)
	assert.True(t, r.IsAllowed(filepath.Join(root, "key.secret")))

	// When the primary file appears and Reload runs
	writeFile(t, filepath.Join(root, PrimaryIgnoreFile), "*.secret\n")
	require.NoError(t, r.Reload())

	// Then the new rules take effect
	assert.False(t, r.IsAllowed(filepath.Join(root, "key.secret")))
}

func TestResolver_IsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)

	assert.True(t, r.IsIgnoreFile(filepath.Join(root, ".gitignore")))
	assert.True(t, r.IsIgnoreFile(filepath.Join(root, "sub", ".gitignore")))
	assert.True(t, r.IsIgnoreFile(filepath.Join(root, PrimaryIgnoreFile)))
	assert.False(t, r.IsIgnoreFile(filepath.Join(root, "main.go")))
}
