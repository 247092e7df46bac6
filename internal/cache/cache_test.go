package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestKeyIsDeterministicAndCollisionFree(t *testing.T) {
	a := Key("classify", "gpt-4o-mini", "chunk text")
	b := Key("classify", "gpt-4o-mini", "chunk text")
	if a != b {
		t.Errorf("same parts gave %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "driftbrief:v1:") {
		t.Errorf("key %q missing version prefix", a)
	}

	// Part boundaries matter: ("ab","c") and ("a","bc") are distinct
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("shifting a boundary between parts must change the key")
	}
	if Key("extract", "gpt-4o-mini", "chunk text") == a {
		t.Error("different stage must change the key")
	}
}

func TestDiskCacheRoundTrip(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := Key("classify", "m", "text")

	if _, found := c.Get(key); found {
		t.Fatal("empty cache reported a hit")
	}
	if err := c.Set(key, []byte(`{"category":"macro"}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found := c.Get(key)
	if !found || string(got) != `{"category":"macro"}` {
		t.Fatalf("Get = %q, %v", got, found)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found := c.Get(key); found {
		t.Error("deleted entry still readable")
	}
}

func TestDiskCacheExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Millisecond)
	key := Key("x")

	if err := c.Set(key, []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, found := c.Get(key); found {
		t.Error("expired entry served")
	}
	// Expired read removes the file
	if _, err := os.Stat(filepath.Join(dir, key+".json")); !os.IsNotExist(err) {
		t.Error("expired entry left on disk")
	}
}

func TestDiskCacheIgnoresCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("x")

	if err := os.WriteFile(filepath.Join(dir, key+".json"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, found := c.Get(key); found {
		t.Error("corrupt entry served as a hit")
	}
}

func TestLayeredCachePromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	key := Key("classify", "m", "text")

	// Seed disk only, simulating a completion from a previous run
	if err := NewDiskCache(dir, time.Hour).Set(key, []byte("cached completion"), 0); err != nil {
		t.Fatal(err)
	}

	c := NewLayeredCache(time.Minute, dir, time.Hour)
	got, found := c.Get(key)
	if !found || string(got) != "cached completion" {
		t.Fatalf("Get = %q, %v, want disk hit", got, found)
	}

	// Promoted: visible from the memory tier directly
	if _, found := c.memory.Get(key); !found {
		t.Error("disk hit not promoted to memory")
	}
}

func TestLayeredCacheWritesThrough(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Hour)
	key := Key("extract", "m", "text")

	if err := c.Set(key, []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if _, found := c.disk.Get(key); !found {
		t.Error("Set did not reach the disk tier")
	}

	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, found := c.Get(key); found {
		t.Error("Clear left an entry behind")
	}
}

func TestMemoryCacheHonorsTTL(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := c.Set("k", []byte("v"), 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got, found := c.Get("k"); !found || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, found)
	}

	time.Sleep(10 * time.Millisecond)
	if _, found := c.Get("k"); found {
		t.Error("entry outlived its TTL")
	}
}
