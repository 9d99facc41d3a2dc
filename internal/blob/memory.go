package blob

import (
	"context"
	"sync"
)

// MemoryBucket is an in-memory Bucket. It backs tests and development
// setups where no cloud storage is available. Safe for concurrent use.
type MemoryBucket struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{blobs: make(map[string][]byte)}
}

// Put stores a blob. Storing the same key twice is idempotent.
func (m *MemoryBucket) Put(_ context.Context, key string, body []byte) (PutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(body))
	copy(buf, body)
	m.blobs[key] = buf
	return PutResult{Key: key, Size: int64(len(body))}, nil
}

// Get retrieves a blob, (nil, nil) when absent.
func (m *MemoryBucket) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	body, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return buf, nil
}

// Delete removes a blob. Deleting a missing key is a no-op.
func (m *MemoryBucket) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)
	return nil
}

// Head reports whether a blob exists.
func (m *MemoryBucket) Head(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[key]
	return ok, nil
}

// List returns every key in the bucket.
func (m *MemoryBucket) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.blobs))
	for key := range m.blobs {
		keys = append(keys, key)
	}
	return keys, nil
}
