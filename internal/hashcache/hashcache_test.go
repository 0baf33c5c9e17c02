package hashcache

import (
	"os"
	"path/filepath"
	"testing"

	coldtesting "github.com/coldvault/agent/internal/testing"
)

func newTestCache(t *testing.T) (*HashCache, string) {
	t.Helper()
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "hash-cache.json")
	c := New(nil)
	c.Initialize(cachePath)
	return c, dir
}

func TestHasChanged_NewFile(t *testing.T) {
	c, dir := newTestCache(t)
	path := filepath.Join(dir, "a.txt")
	coldtesting.AssertNoError(t, os.WriteFile(path, []byte("hello"), 0644))

	if !c.HasChanged(path) {
		t.Fatal("expected first observation to report changed")
	}
	if c.HasChanged(path) {
		t.Fatal("expected second observation of unchanged content to report unchanged")
	}
}

func TestHasChanged_ContentModified(t *testing.T) {
	c, dir := newTestCache(t)
	path := filepath.Join(dir, "a.txt")
	coldtesting.AssertNoError(t, os.WriteFile(path, []byte("hello"), 0644))
	c.HasChanged(path)

	coldtesting.AssertNoError(t, os.WriteFile(path, []byte("goodbye"), 0644))
	if !c.HasChanged(path) {
		t.Fatal("expected modified content to report changed")
	}
}

func TestHasChanged_MissingFile(t *testing.T) {
	c, dir := newTestCache(t)
	if !c.HasChanged(filepath.Join(dir, "nope.txt")) {
		t.Fatal("expected missing file to fail open as changed")
	}
}

func TestSaveAndLoad(t *testing.T) {
	c, dir := newTestCache(t)
	path := filepath.Join(dir, "a.txt")
	c.UpdateHash(path, "deadbeef")
	if !c.Save() {
		t.Fatal("expected save to succeed")
	}

	c2 := New(nil)
	c2.Initialize(filepath.Join(dir, "hash-cache.json"))
	if !c2.Load() {
		t.Fatal("expected load to succeed")
	}
	got, ok := c2.Get(path)
	if !ok || got != "deadbeef" {
		t.Fatalf("expected loaded digest 'deadbeef', got %q (ok=%v)", got, ok)
	}
}

func TestLoad_MissingFileReturnsFalse(t *testing.T) {
	c := New(nil)
	c.Initialize(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if c.Load() {
		t.Fatal("expected Load to return false for a missing file")
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache after failed load, got size %d", c.Size())
	}
}

func TestLoad_CorruptFileReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hash-cache.json")
	coldtesting.AssertNoError(t, os.WriteFile(path, []byte("not json"), 0644))

	c := New(nil)
	c.Initialize(path)
	if c.Load() {
		t.Fatal("expected Load to return false for corrupt JSON")
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t)
	c.UpdateHash("/a", "h1")
	c.UpdateHash("/b", "h2")
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after Clear, got %d", c.Size())
	}
}

func TestDefaultCachePath(t *testing.T) {
	if got := DefaultCachePath(""); got == "" {
		t.Fatal("expected a non-empty default cache path")
	}
	override := "/custom/cache"
	got := DefaultCachePath(override)
	want := filepath.Join(override, "internxt-backup-hash-cache.json")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
