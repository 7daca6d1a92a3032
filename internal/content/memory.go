package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"nifty-go/internal/registry"
)

// MemoryStore is an in-memory ContentStore keyed by SHA-256.
// It is useful for tests and safe for concurrent use.
type MemoryStore struct {
	content map[string][]byte
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string][]byte)}
}

// Put stores the content. Storing the same bytes twice is a no-op.
func (m *MemoryStore) Put(ctx context.Context, r io.Reader, size int64) (string, error) {
	data, cid, err := digest(r, size)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[cid] = data
	return cid, nil
}

func (m *MemoryStore) Get(ctx context.Context, cid string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[cid]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, cid)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Len returns the number of distinct blobs held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ registry.ContentStore = (*MemoryStore)(nil)
