package ignore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitLines(t *testing.T) {
	got := SplitLines("node_modules\n\n  *.log  \n\t\n.git\n")
	want := []string{"node_modules", "*.log", ".git"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMatcherLocalRoot(t *testing.T) {
	m := Compile([]string{"node_modules", "*.log"}, "/workspace", "/srv/app")

	cases := []struct {
		path string
		want bool
	}{
		{"/workspace", false}, // the root itself is never ignored
		{"/workspace/node_modules", true},
		{"/workspace/node_modules/lib/index.js", true},
		{"/workspace/build/out.log", true},
		{"/workspace/src/main.go", false},
		{"/elsewhere/node_modules", false}, // not under either root
	}
	for _, c := range cases {
		if got := m.Match(c.path); got != c.want {
			t.Errorf("Match(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestMatcherRemoteRoot(t *testing.T) {
	m := Compile([]string{"*.log"}, "/workspace", "/srv/app")

	if !m.Match("/srv/app/deploy.log") {
		t.Error("remote path should match relative to the remote root")
	}
	if m.Match("/srv/app") {
		t.Error("the remote root itself is never ignored")
	}
	if m.Match("/srv/other/deploy.log") {
		t.Error("path outside both roots should not match")
	}
}

func TestMatcherEmptyPatterns(t *testing.T) {
	m := Compile(nil, "/workspace", "/srv/app")
	if m.Match("/workspace/anything") {
		t.Error("empty pattern set should ignore nothing")
	}
}

func TestMatcherBlankPatternsDropped(t *testing.T) {
	m := Compile([]string{"", "  ", "*.tmp"}, "/workspace", "/srv/app")
	if !m.Match("/workspace/a.tmp") {
		t.Error("*.tmp should still match")
	}
	if m.Match("/workspace/a.txt") {
		t.Error("blank patterns must not match everything")
	}
}

func TestFileCacheReadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".syncignore")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewFileCache(2)
	lines, err := c.Lines(path)
	if err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"a", "b"}) {
		t.Fatalf("unexpected lines: %v", lines)
	}

	// rewrite the file; the cached copy must be served
	if err := os.WriteFile(path, []byte("changed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	lines, err = c.Lines(path)
	if err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"a", "b"}) {
		t.Fatalf("expected cached content, got %v", lines)
	}
}

func TestFileCacheEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 3)
	for i := range paths {
		paths[i] = filepath.Join(dir, "ig"+string(rune('a'+i)))
		if err := os.WriteFile(paths[i], []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	c := NewFileCache(2)
	for _, p := range paths {
		if _, err := c.Lines(p); err != nil {
			t.Fatal(err)
		}
	}

	// the first entry was evicted; deleting its file forces a re-read error
	if err := os.Remove(paths[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Lines(paths[0]); err == nil {
		t.Fatal("expected re-read of evicted entry to fail")
	}

	// the newest entry is still cached
	if err := os.Remove(paths[2]); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Lines(paths[2]); err != nil {
		t.Fatalf("newest entry should be cached: %v", err)
	}
}

func TestFileCacheMissingFile(t *testing.T) {
	c := NewFileCache(2)
	if _, err := c.Lines(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFileCacheClear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".syncignore")
	if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewFileCache(2)
	if _, err := c.Lines(path); err != nil {
		t.Fatal(err)
	}
	c.Clear()

	if err := os.WriteFile(path, []byte("b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	lines, err := c.Lines(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lines, []string{"b"}) {
		t.Fatalf("expected fresh read after Clear, got %v", lines)
	}
}
