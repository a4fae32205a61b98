package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Store. Documents are kept encoded so callers get
// copies, the same as with the on-disk stores.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte
}

func InitMemory() *Memory {
	return &Memory{docs: make(map[string]map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, bucket string, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", bucket, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.docs[bucket] == nil {
		m.docs[bucket] = make(map[string][]byte)
	}
	m.docs[bucket][key] = data
	return nil
}

func (m *Memory) Get(ctx context.Context, bucket string, key string, v any) error {
	m.mu.Lock()
	data, ok := m.docs[bucket][key]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}

	return json.Unmarshal(data, v)
}

func (m *Memory) Reset(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs, bucket)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
