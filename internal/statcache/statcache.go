// Package statcache caches file and directory metadata in a trie keyed by
// path components. Entries expire lazily: staleness is only detected at
// lookup time, never swept in the background.
package statcache

import (
	"strings"
	"sync"
	"time"

	"github.com/raj-prince/gcscfuse/internal/metrics"
)

// StatInfo is the cached metadata for one path.
type StatInfo struct {
	Size     int64
	MTime    time.Time
	CachedAt time.Time
	IsDir    bool
	// Loaded distinguishes real metadata from implicit ancestor
	// placeholders created while inserting a descendant.
	Loaded bool
}

type node struct {
	children map[string]*node
	stat     StatInfo
	exists   bool
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Cache is a trie-structured stat cache. The root path always exists, is
// a directory, and never expires. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	root    *node
	timeout time.Duration
}

// New returns an empty cache with expiry disabled.
func New() *Cache {
	c := &Cache{}
	c.reset()
	return c
}

// SetTimeout sets the entry TTL. Zero or negative disables expiry.
func (c *Cache) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *Cache) reset() {
	c.root = newNode()
	c.root.exists = true
	c.root.stat = StatInfo{IsDir: true, Loaded: true}
}

// splitPath strips leading and trailing slashes and splits the remainder
// into components. Root and empty paths yield no components.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// findNode walks the trie; with create it materializes missing nodes.
// Callers hold c.mu.
func (c *Cache) findNode(components []string, create bool) *node {
	cur := c.root
	for _, comp := range components {
		next, ok := cur.children[comp]
		if !ok {
			if !create {
				return nil
			}
			next = newNode()
			cur.children[comp] = next
		}
		cur = next
	}
	return cur
}

// InsertFile caches file metadata for path, implicitly creating every
// ancestor as a directory record.
func (c *Cache) InsertFile(path string, size int64, mtime time.Time) {
	components := splitPath(path)
	if len(components) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 1; i < len(components); i++ {
		c.insertDirLocked(components[:i])
	}

	now := time.Now()
	n := c.findNode(components, true)
	n.exists = true
	n.stat = StatInfo{
		Size:     size,
		MTime:    mtime,
		CachedAt: now,
		IsDir:    false,
		Loaded:   true,
	}
}

// InsertDirectory caches a directory record for path. Already-loaded
// records are left untouched, so repeated listings do not refresh
// CachedAt; re-resolution after expiry is the caller's responsibility.
func (c *Cache) InsertDirectory(path string) {
	components := splitPath(path)
	if len(components) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertDirLocked(components)
}

func (c *Cache) insertDirLocked(components []string) {
	n := c.findNode(components, true)
	if n.stat.Loaded {
		return
	}
	now := time.Now()
	n.exists = true
	n.stat = StatInfo{
		MTime:    now,
		CachedAt: now,
		IsDir:    true,
		Loaded:   true,
	}
}

// GetStat returns the cached record for path, or false on a miss. Expired
// records count as misses but are not deleted.
func (c *Cache) GetStat(path string) (StatInfo, bool) {
	components := splitPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(components) == 0 {
		return c.root.stat, true
	}

	n := c.findNode(components, false)
	if n == nil || !n.exists || !n.stat.Loaded {
		metrics.RecordStatCache(false)
		return StatInfo{}, false
	}
	if c.timeout > 0 && time.Since(n.stat.CachedAt) > c.timeout {
		metrics.RecordStatCache(false)
		return StatInfo{}, false
	}
	metrics.RecordStatCache(true)
	return n.stat, true
}

// Exists reports whether path is known to exist, ignoring the TTL. It is
// used for directory-structure decisions, not metadata freshness.
func (c *Cache) Exists(path string) bool {
	components := splitPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(components) == 0 {
		return true
	}
	n := c.findNode(components, false)
	return n != nil && n.exists
}

// IsDirectory reports whether path is a known directory, ignoring the TTL.
func (c *Cache) IsDirectory(path string) bool {
	components := splitPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(components) == 0 {
		return true
	}
	n := c.findNode(components, false)
	return n != nil && n.exists && n.stat.IsDir
}

// Remove marks path as non-existent and prunes childless, non-existent
// nodes back toward the root.
func (c *Cache) Remove(path string) {
	components := splitPath(path)
	if len(components) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	chain := make([]*node, 0, len(components)+1)
	chain = append(chain, c.root)
	cur := c.root
	for _, comp := range components {
		next, ok := cur.children[comp]
		if !ok {
			return
		}
		cur = next
		chain = append(chain, cur)
	}

	cur.exists = false
	cur.stat = StatInfo{}

	for i := len(components) - 1; i >= 0; i-- {
		n := chain[i+1]
		if len(n.children) == 0 && !n.exists {
			delete(chain[i].children, components[i])
		} else {
			break
		}
	}
}

// Clear resets the cache to a fresh trie holding only the root.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// ListChildren returns the names of the existing immediate children of a
// cached directory.
func (c *Cache) ListChildren(path string) []string {
	components := splitPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.findNode(components, false)
	if n == nil || !n.stat.IsDir {
		return nil
	}
	var names []string
	for name, child := range n.children {
		if child.exists {
			names = append(names, name)
		}
	}
	return names
}
