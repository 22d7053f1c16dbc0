package archive

import (
	"context"
	"time"
)

// Object describes one stored entry.
type Object struct {
	Name    string
	ModTime time.Time
}

// Backend is a flat namespace of named byte blobs. Read returns ErrNotFound
// for a missing name and Remove of a missing name succeeds.
type Backend interface {
	Write(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
	// List returns every entry whose name ends with suffix. An empty suffix
	// lists everything.
	List(ctx context.Context, suffix string) ([]Object, error)
}
