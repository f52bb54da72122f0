package statcache

import (
	"sort"
	"testing"
	"time"
)

func TestInsertFileAndGetStat(t *testing.T) {
	c := New()
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.InsertFile("/dir/file.txt", 42, mtime)

	info, ok := c.GetStat("/dir/file.txt")
	if !ok {
		t.Fatal("GetStat returned miss for inserted file")
	}
	if info.IsDir {
		t.Error("file record reported as directory")
	}
	if info.Size != 42 {
		t.Errorf("size = %d, want 42", info.Size)
	}
	if !info.MTime.Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.MTime, mtime)
	}
}

func TestAncestorsCreatedImplicitly(t *testing.T) {
	c := New()
	c.InsertFile("/a/b/c.txt", 10, time.Now())

	for _, p := range []string{"/a", "/a/b"} {
		if !c.Exists(p) {
			t.Errorf("Exists(%q) = false, want true", p)
		}
		info, ok := c.GetStat(p)
		if !ok {
			t.Fatalf("GetStat(%q) missed", p)
		}
		if !info.IsDir {
			t.Errorf("%q not reported as directory", p)
		}
	}
}

func TestRootAlwaysExists(t *testing.T) {
	c := New()
	for _, p := range []string{"", "/"} {
		info, ok := c.GetStat(p)
		if !ok {
			t.Fatalf("GetStat(%q) missed for root", p)
		}
		if !info.IsDir {
			t.Errorf("root not a directory for %q", p)
		}
		if !c.Exists(p) || !c.IsDirectory(p) {
			t.Errorf("root existence checks failed for %q", p)
		}
	}
}

func TestGetStatMissesUnknownPath(t *testing.T) {
	c := New()
	if _, ok := c.GetStat("/nope"); ok {
		t.Error("GetStat hit for never-inserted path")
	}
	if c.Exists("/nope") {
		t.Error("Exists true for never-inserted path")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New()
	c.SetTimeout(time.Hour)
	c.InsertFile("/f", 1, time.Now())

	if _, ok := c.GetStat("/f"); !ok {
		t.Fatal("fresh record should hit")
	}

	// Age the record just past the timeout.
	n := c.findNode(splitPath("/f"), false)
	n.stat.CachedAt = time.Now().Add(-time.Hour - time.Second)

	if _, ok := c.GetStat("/f"); ok {
		t.Error("expired record should miss")
	}

	// Lazy eviction: the node itself survives and existence is unaffected.
	if !c.Exists("/f") {
		t.Error("expired record should still exist in the trie")
	}
}

func TestTTLBoundary(t *testing.T) {
	c := New()
	c.SetTimeout(time.Hour)
	c.InsertFile("/f", 1, time.Now())

	n := c.findNode(splitPath("/f"), false)
	n.stat.CachedAt = time.Now().Add(-time.Hour + time.Second)
	if _, ok := c.GetStat("/f"); !ok {
		t.Error("record just inside the TTL should hit")
	}

	n.stat.CachedAt = time.Now().Add(-time.Hour - time.Second)
	if _, ok := c.GetStat("/f"); ok {
		t.Error("record just past the TTL should miss")
	}
}

func TestTTLDisabled(t *testing.T) {
	c := New()
	c.SetTimeout(0)
	c.InsertFile("/old", 1, time.Now())

	n := c.findNode(splitPath("/old"), false)
	n.stat.CachedAt = time.Now().Add(-1000 * time.Hour)

	if _, ok := c.GetStat("/old"); !ok {
		t.Error("timeout 0 must never expire records")
	}

	c.SetTimeout(-time.Second)
	if _, ok := c.GetStat("/old"); !ok {
		t.Error("negative timeout must never expire records")
	}
}

func TestInsertDirectorySkipsLoadedRecord(t *testing.T) {
	c := New()
	c.InsertDirectory("/d")
	first, _ := c.GetStat("/d")

	time.Sleep(5 * time.Millisecond)
	c.InsertDirectory("/d")
	second, _ := c.GetStat("/d")

	if !second.CachedAt.Equal(first.CachedAt) {
		t.Error("re-inserting a loaded directory must not refresh CachedAt")
	}
}

func TestInsertFileDoesNotClobberLoadedAncestor(t *testing.T) {
	c := New()
	c.InsertDirectory("/a")
	before, _ := c.GetStat("/a")

	time.Sleep(5 * time.Millisecond)
	c.InsertFile("/a/b.txt", 3, time.Now())
	after, _ := c.GetStat("/a")

	if !after.CachedAt.Equal(before.CachedAt) {
		t.Error("implicit ancestor insertion must not touch a loaded record")
	}
}

func TestRemoveRoundTrip(t *testing.T) {
	c := New()
	mtime := time.Now()
	c.InsertFile("/p/q.txt", 10, mtime)

	c.Remove("/p/q.txt")
	if _, ok := c.GetStat("/p/q.txt"); ok {
		t.Error("removed path should miss")
	}
	if c.Exists("/p/q.txt") {
		t.Error("removed path should not exist")
	}

	c.InsertFile("/p/q.txt", 20, mtime)
	info, ok := c.GetStat("/p/q.txt")
	if !ok {
		t.Fatal("re-inserted path should hit")
	}
	if info.Size != 20 {
		t.Errorf("re-inserted size = %d, want 20", info.Size)
	}
}

func TestRemovePrunesChildlessNodes(t *testing.T) {
	c := New()
	c.InsertFile("/x/y/z.txt", 1, time.Now())
	c.Remove("/x/y/z.txt")

	// y had only z.txt but y itself still exists as a loaded directory,
	// so pruning stops there.
	if c.findNode(splitPath("/x/y/z.txt"), false) != nil {
		t.Error("removed leaf node should be pruned")
	}
	if !c.Exists("/x/y") {
		t.Error("existing ancestor must survive pruning")
	}
}

func TestRemoveStopsAtPopulatedAncestor(t *testing.T) {
	c := New()
	c.InsertFile("/d/a.txt", 1, time.Now())
	c.InsertFile("/d/b.txt", 2, time.Now())

	c.Remove("/d/a.txt")
	if c.Exists("/d/a.txt") {
		t.Error("removed sibling should not exist")
	}
	if !c.Exists("/d/b.txt") {
		t.Error("surviving sibling must remain")
	}
	if !c.IsDirectory("/d") {
		t.Error("parent directory must remain")
	}
}

func TestRemoveMissingPathIsNoop(t *testing.T) {
	c := New()
	c.InsertFile("/keep.txt", 1, time.Now())
	c.Remove("/absent/path")
	if !c.Exists("/keep.txt") {
		t.Error("removing a missing path must not disturb other entries")
	}
}

func TestClear(t *testing.T) {
	c := New()
	c.InsertFile("/a/b.txt", 1, time.Now())
	c.Clear()

	if c.Exists("/a") || c.Exists("/a/b.txt") {
		t.Error("Clear must drop all entries")
	}
	if _, ok := c.GetStat("/"); !ok {
		t.Error("root must survive Clear")
	}
}

func TestListChildren(t *testing.T) {
	c := New()
	c.InsertFile("/dir/a.txt", 1, time.Now())
	c.InsertFile("/dir/b.txt", 2, time.Now())
	c.InsertDirectory("/dir/sub")

	names := c.ListChildren("/dir")
	sort.Strings(names)
	want := []string{"a.txt", "b.txt", "sub"}
	if len(names) != len(want) {
		t.Fatalf("children = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("children = %v, want %v", names, want)
		}
	}
}

func TestPathNormalization(t *testing.T) {
	c := New()
	c.InsertFile("dir/file", 5, time.Now())

	for _, p := range []string{"/dir/file", "dir/file", "/dir/file/"} {
		if _, ok := c.GetStat(p); !ok {
			t.Errorf("GetStat(%q) missed after slash-free insert", p)
		}
	}
}
