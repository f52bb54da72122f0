// Package store defines the object-store client used by the filesystem
// and provides an S3-compatible implementation plus an in-memory fake.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested object does not exist. Callers use
// errors.Is to distinguish absence from transport failures.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object or, for delimiter listings, one
// aggregated prefix.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
	IsDir   bool // true for aggregated prefixes ("directories")
}

// ObjectStore is the backing-store client. Implementations handle raw
// object I/O against a single bucket; directory structure is synthesized
// by the filesystem from flat keys.
type ObjectStore interface {
	// GetMetadata returns size and modification time for an object.
	GetMetadata(ctx context.Context, key string) (ObjectInfo, error)

	// ReadRange returns the bytes in [start, end). Ranges at or past the
	// end of the object yield an empty slice, not an error.
	ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error)

	// WriteFull replaces the object's content.
	WriteFull(ctx context.Context, key string, data []byte) error

	// DeleteObject removes an object.
	DeleteObject(ctx context.Context, key string) error

	// ListObjects lists objects under prefix. With a non-empty delimiter
	// the result also contains aggregated prefixes (IsDir entries, key
	// keeps the trailing delimiter). max <= 0 means no limit. On error the
	// entries gathered so far are returned alongside it.
	ListObjects(ctx context.Context, prefix, delimiter string, max int) ([]ObjectInfo, error)

	// ObjectExists reports whether an object with this exact key exists.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// DirectoryExists reports whether any object exists under prefix.
	DirectoryExists(ctx context.Context, prefix string) (bool, error)
}
