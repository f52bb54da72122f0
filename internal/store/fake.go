package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fake is an in-memory ObjectStore for tests. Failure fields make the
// corresponding operations return an injected error.
type Fake struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modTimes map[string]time.Time

	FailWrites  bool
	FailDeletes bool
	FailReads   bool
	FailLists   bool

	calls map[string]int
}

var errInjected = errors.New("injected store failure")

// NewFake returns an empty fake store.
func NewFake() *Fake {
	return &Fake{
		objects:  make(map[string][]byte),
		modTimes: make(map[string]time.Time),
		calls:    make(map[string]int),
	}
}

// SetObject seeds an object without counting as a write call.
func (f *Fake) SetObject(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	f.modTimes[key] = time.Now()
}

// Object returns a copy of the stored content.
func (f *Fake) Object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Calls reports how many times the named operation ran.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) GetMetadata(_ context.Context, key string) (ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetMetadata"]++
	data, ok := f.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("head %s: %w", key, ErrNotFound)
	}
	return ObjectInfo{Key: key, Size: int64(len(data)), ModTime: f.modTimes[key]}, nil
}

func (f *Fake) ReadRange(_ context.Context, key string, start, end int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ReadRange"]++
	if f.FailReads {
		return nil, errInjected
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	size := int64(len(data))
	if start >= size || end <= start {
		return nil, nil
	}
	if end > size {
		end = size
	}
	return append([]byte(nil), data[start:end]...), nil
}

func (f *Fake) WriteFull(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["WriteFull"]++
	if f.FailWrites {
		return errInjected
	}
	f.objects[key] = append([]byte(nil), data...)
	f.modTimes[key] = time.Now()
	return nil
}

func (f *Fake) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteObject"]++
	if f.FailDeletes {
		return errInjected
	}
	if _, ok := f.objects[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	delete(f.objects, key)
	delete(f.modTimes, key)
	return nil
}

func (f *Fake) ListObjects(_ context.Context, prefix, delimiter string, max int) ([]ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListObjects"]++
	if f.FailLists {
		return nil, errInjected
	}

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []ObjectInfo
	seenPrefixes := make(map[string]bool)
	for _, k := range keys {
		rest := k[len(prefix):]
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+len(delimiter)]
				if !seenPrefixes[cp] {
					seenPrefixes[cp] = true
					out = append(out, ObjectInfo{Key: cp, IsDir: true})
				}
				continue
			}
		}
		out = append(out, ObjectInfo{
			Key:     k,
			Size:    int64(len(f.objects[k])),
			ModTime: f.modTimes[k],
		})
		if max > 0 && len(out) >= max {
			break
		}
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (f *Fake) ObjectExists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ObjectExists"]++
	_, ok := f.objects[key]
	return ok, nil
}

func (f *Fake) DirectoryExists(_ context.Context, prefix string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DirectoryExists"]++
	if f.FailLists {
		return false, errInjected
	}
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			return true, nil
		}
	}
	return false, nil
}
