package db

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// Store persists JSON documents by bucket and key. Each key is written by one
// owner and read by another, so no cross-key transactions are offered.
type Store interface {
	Put(ctx context.Context, bucket string, key string, v any) error
	Get(ctx context.Context, bucket string, key string, v any) error
	Reset(ctx context.Context, bucket string) error
	Close() error
}

const (
	KIND_FILE   = "file"
	KIND_SQLITE = "sqlite"
)

// Open returns the store of the given kind rooted at dir.
func Open(kind string, dir string) (Store, error) {
	switch kind {
	case KIND_FILE, "":
		return InitFiles(dir)
	case KIND_SQLITE:
		return InitSQLite(dir)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
