// Package buffer accumulates writes in memory per object and tracks
// which buffers have unflushed changes. Buffers are retained after a
// successful upload as the current known content; only the dirty flag
// clears.
package buffer

import (
	"sync"

	"github.com/raj-prince/gcscfuse/internal/metrics"
)

// Manager holds the write buffers and dirty flags, keyed by object name.
// Safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	bufs  map[string][]byte
	dirty map[string]bool
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{
		bufs:  make(map[string][]byte),
		dirty: make(map[string]bool),
	}
}

// Create initializes an empty buffer for name and marks it dirty.
func (m *Manager) Create(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufs[name] = []byte{}
	m.dirty[name] = true
	m.updateGaugeLocked()
}

// Write copies p into the buffer at off, zero-extending any gap, and
// marks the buffer dirty. Returns len(p); there are no partial writes.
func (m *Manager) Write(name string, p []byte, off int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.bufs[name]
	end := off + int64(len(p))
	if end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[off:end], p)
	m.bufs[name] = buf
	m.dirty[name] = true
	m.updateGaugeLocked()
	return len(p)
}

// SetContent replaces the buffer for name without touching the dirty
// flag. Used to seed a buffer from remote content before a truncate.
func (m *Manager) SetContent(name string, p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufs[name] = append([]byte(nil), p...)
}

// Truncate resizes the buffer to size, zero-padding growth, and marks it
// dirty. A missing buffer becomes a zero-filled one of the given size.
func (m *Manager) Truncate(name string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.bufs[name]
	if int64(len(buf)) >= size {
		buf = buf[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, buf)
		buf = grown
	}
	m.bufs[name] = buf
	m.dirty[name] = true
	m.updateGaugeLocked()
}

// Read copies buffered content from off into p. The second return is
// false when name has no buffer; a true with zero bytes means the offset
// is at or past the end of the buffered data.
func (m *Manager) Read(name string, p []byte, off int64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.bufs[name]
	if !ok {
		return 0, false
	}
	if off >= int64(len(buf)) {
		return 0, true
	}
	return copy(p, buf[off:]), true
}

// Len returns the buffered length for name.
func (m *Manager) Len(name string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.bufs[name]
	return int64(len(buf)), ok
}

// Has reports whether name is buffered.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bufs[name]
	return ok
}

// Snapshot returns a copy of the buffered content for upload.
func (m *Manager) Snapshot(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.bufs[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), buf...), true
}

// Dirty reports whether name has unflushed changes.
func (m *Manager) Dirty(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty[name]
}

// ClearDirty marks name as flushed. The buffer itself is retained.
func (m *Manager) ClearDirty(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty[name] = false
	m.updateGaugeLocked()
}

// Remove drops the buffer and dirty flag for name.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bufs, name)
	delete(m.dirty, name)
	m.updateGaugeLocked()
}

// DirtyNames returns every name with unflushed changes.
func (m *Manager) DirtyNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name, d := range m.dirty {
		if d {
			names = append(names, name)
		}
	}
	return names
}

func (m *Manager) updateGaugeLocked() {
	n := 0
	for _, d := range m.dirty {
		if d {
			n++
		}
	}
	metrics.SetDirtyBuffers(n)
}
