package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Files keeps one JSON file per key: <dir>/<bucket>/<key>.json.
type Files struct {
	dir string
}

func InitFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	return &Files{dir: dir}, nil
}

func (f *Files) Path(bucket string, key string) string {
	return filepath.Join(f.dir, bucket, key+".json")
}

func (f *Files) Put(ctx context.Context, bucket string, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", bucket, key, err)
	}

	if err := os.MkdirAll(filepath.Join(f.dir, bucket), 0o755); err != nil {
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}

	// Write then rename so a reader never sees half a document.
	path := f.Path(bucket, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func (f *Files) Get(ctx context.Context, bucket string, key string, v any) error {
	path := f.Path(bucket, key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	return nil
}

// Reset empties the bucket, creating it if needed.
func (f *Files) Reset(ctx context.Context, bucket string) error {
	path := filepath.Join(f.dir, bucket)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	return os.MkdirAll(path, 0o755)
}

func (f *Files) Close() error {
	return nil
}
