// Package ignore decides which workspace files are eligible for
// indexing. It implements the gitignore pattern syntax as documented
// at https://git-scm.com/docs/gitignore and layers pattern sources in
// order of precedence.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled ignore patterns and provides thread-safe matching.
type Matcher struct {
	rules []rule
	mu    sync.RWMutex
}

// rule represents a single compiled ignore pattern.
type rule struct {
	pattern  string         // original pattern
	regex    *regexp.Regexp // compiled regex
	negation bool           // starts with !
	dirOnly  bool           // ends with /
	anchored bool           // contains / or starts with /
	base     string         // base directory (for nested ignore files)
}

// NewMatcher creates a new empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		rules: make([]rule, 0),
	}
}

// AddPattern adds an ignore pattern to the matcher.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds a pattern that only applies under the given base directory.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	// "\ " at the end preserves the trailing space, so record it before trimming
	hasEscapedTrailingSpace := strings.HasSuffix(pattern, `\ `)

	pattern = strings.TrimSpace(pattern)

	// Skip empty lines and comments
	if pattern == "" || (strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`)) {
		return
	}

	r := rule{
		pattern: pattern,
		base:    base,
	}

	// Handle escaped leading # or !
	if strings.HasPrefix(pattern, `\#`) {
		pattern = strings.TrimPrefix(pattern, `\`)
		r.pattern = pattern
	}
	if strings.HasPrefix(pattern, `\!`) {
		pattern = strings.TrimPrefix(pattern, `\`)
		r.pattern = pattern
	} else if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = strings.TrimPrefix(pattern, "!")
	}

	if hasEscapedTrailingSpace {
		if strings.HasSuffix(pattern, `\`) {
			pattern = strings.TrimSuffix(pattern, `\`) + " "
		}
	}

	// Directory-only pattern (trailing /)
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	// Anchored pattern (leading /)
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}

	// A pattern with an internal / is anchored to the base:
	// "doc/frotz" means "/doc/frotz", not "**/doc/frotz"
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	regex := patternToRegex(pattern)
	r.regex = regexp.MustCompile("^" + regex + "$")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads patterns from an ignore file.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPatternWithBase(scanner.Text(), base)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}

	return nil
}

// RuleCount returns the number of compiled rules.
func (m *Matcher) RuleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match checks if a path matches any ignore pattern.
// Returns true if the path should be ignored.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false

	// Last matching rule wins, negations re-include
	for _, r := range m.rules {
		if m.matchRule(path, isDir, r) {
			ignored = !r.negation
		}
	}

	return ignored
}

// matchRule checks if a path matches a single rule.
// Directory-only patterns (ending with /) also match files inside that
// directory: for pattern "temp/", path "temp/file.go" matches.
func (m *Matcher) matchRule(path string, isDir bool, r rule) bool {
	// Rules from nested ignore files only apply under their base
	if r.base != "" {
		if !strings.HasPrefix(path, r.base+"/") && path != r.base {
			return false
		}
		if path == r.base {
			path = filepath.Base(path)
		} else {
			path = strings.TrimPrefix(path, r.base+"/")
		}
	}

	parts := strings.Split(path, "/")
	basename := parts[len(parts)-1]

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		// Files inside an anchored ignored directory
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				checkPath := strings.Join(parts[:i+1], "/")
				if r.regex.MatchString(checkPath) {
					return true
				}
			}
		}
		return false
	}

	// "temp/" matches a temp dir anywhere and files inside it
	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(basename) {
		return true
	}

	// Full path check covers ** patterns
	if r.regex.MatchString(path) {
		return true
	}

	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}

	return false
}

// patternToRegex converts an ignore pattern to a regex string.
func patternToRegex(pattern string) string {
	var result strings.Builder

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// **/ matches any number of directories
					result.WriteString("(?:.*/)?")
					i += 3
					continue
				} else if i == 0 || (i > 0 && pattern[i-1] == '/') {
					// ** at end or between slashes matches anything
					result.WriteString(".*")
					i += 2
					continue
				}
			}
			// Single * matches anything except /
			result.WriteString("[^/]*")
			i++

		case '?':
			result.WriteString("[^/]")
			i++

		case '[':
			// Character class, pass through if closed
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				result.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				result.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '\\':
			if i+1 < len(pattern) {
				result.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				result.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			result.WriteString(regexp.QuoteMeta(string(c)))
			i++

		default:
			result.WriteString(string(c))
			i++
		}
	}

	return result.String()
}

// ParsePatterns extracts patterns from ignore file content.
// Returns non-empty, non-comment lines.
func ParsePatterns(content string) []string {
	var patterns []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`) {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}
