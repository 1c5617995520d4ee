package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ig "github.com/sabhiram/go-gitignore"
)

// FileCacheCapacity bounds how many ignore files are kept in memory.
// Several services commonly reference the same shared ignore file, so a
// small cache is enough to avoid repeated disk reads.
const FileCacheCapacity = 6

// FileCache caches the line-split contents of ignore files by path.
// Shared process-wide; safe under concurrent resolution calls from
// multiple services.
type FileCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	lines    map[string][]string
}

// SharedFileCache is the process-wide ignore-file cache.
var SharedFileCache = NewFileCache(FileCacheCapacity)

// NewFileCache creates a FileCache holding at most capacity entries.
func NewFileCache(capacity int) *FileCache {
	if capacity < 1 {
		capacity = 1
	}
	return &FileCache{capacity: capacity, lines: map[string][]string{}}
}

// Lines returns the non-blank lines of the ignore file at path, reading
// from disk on a cache miss. The oldest entry is evicted once the cache
// is full.
func (c *FileCache) Lines(path string) ([]string, error) {
	c.mu.Lock()
	if lines, ok := c.lines[path]; ok {
		c.mu.Unlock()
		return lines, nil
	}
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}
	lines := SplitLines(string(data))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[path]; !ok {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.lines, oldest)
		}
		c.order = append(c.order, path)
		c.lines[path] = lines
	}
	return lines, nil
}

// Clear drops every cached entry.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.lines = map[string][]string{}
}

// SplitLines splits ignore-file content into trimmed, non-blank lines.
func SplitLines(content string) []string {
	raw := strings.Split(content, "\n")
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		l := strings.TrimSpace(ln)
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// Matcher is a compiled ignore predicate. Matching is relative to
// whichever declared root the candidate path falls under: the local base
// directory when the path starts with it, the remote path otherwise.
type Matcher struct {
	localRoot  string
	remoteRoot string
	rules      *ig.GitIgnore
}

// Compile builds a Matcher from gitignore-style patterns. Blank patterns
// are dropped; a nil or empty pattern set yields a matcher that ignores
// nothing.
func Compile(patterns []string, localRoot, remoteRoot string) *Matcher {
	lines := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		lines = append(lines, p)
	}
	return &Matcher{
		localRoot:  filepath.Clean(localRoot),
		remoteRoot: strings.TrimSuffix(remoteRoot, "/"),
		rules:      ig.CompileIgnoreLines(lines...),
	}
}

// Match reports whether path is excluded from synchronization. A path
// equal to its root (empty relative path) is never ignored.
func (m *Matcher) Match(path string) bool {
	rel, ok := m.relative(path)
	if !ok {
		return false
	}
	if rel == "" || rel == "." {
		return false
	}
	return m.rules.MatchesPath(rel)
}

// relative resolves path against the local root first, then the remote
// root. Remote paths always use forward slashes.
func (m *Matcher) relative(p string) (string, bool) {
	if m.localRoot != "" && m.localRoot != "." {
		clean := filepath.Clean(p)
		if clean == m.localRoot {
			return "", true
		}
		prefix := m.localRoot + string(os.PathSeparator)
		if strings.HasPrefix(clean, prefix) {
			return filepath.ToSlash(strings.TrimPrefix(clean, prefix)), true
		}
	}
	if m.remoteRoot != "" {
		slashed := filepath.ToSlash(p)
		if slashed == m.remoteRoot {
			return "", true
		}
		if strings.HasPrefix(slashed, m.remoteRoot+"/") {
			return strings.TrimPrefix(slashed, m.remoteRoot+"/"), true
		}
	}
	return "", false
}
