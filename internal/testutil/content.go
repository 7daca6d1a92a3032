package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"nifty-go/internal/content"
	"nifty-go/internal/registry"
)

// NewTestContentStore creates a new in-memory content store for testing.
func NewTestContentStore() *content.MemoryStore {
	return content.NewMemoryStore()
}

// ErrStoreDown is returned by a FlakyContentStore while it is failing.
var ErrStoreDown = errors.New("content store down")

// FlakyContentStore wraps a store and fails every call while Fail is set.
type FlakyContentStore struct {
	registry.ContentStore

	mu   sync.Mutex
	fail bool
	puts int
}

func NewFlakyContentStore(inner registry.ContentStore) *FlakyContentStore {
	return &FlakyContentStore{ContentStore: inner}
}

// SetFailing switches failure mode on or off.
func (f *FlakyContentStore) SetFailing(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

// Puts returns the number of Put calls that reached the inner store.
func (f *FlakyContentStore) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func (f *FlakyContentStore) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *FlakyContentStore) Put(ctx context.Context, r io.Reader, size int64) (string, error) {
	if f.failing() {
		return "", ErrStoreDown
	}
	f.mu.Lock()
	f.puts++
	f.mu.Unlock()
	return f.ContentStore.Put(ctx, r, size)
}

func (f *FlakyContentStore) Get(ctx context.Context, cid string, w io.Writer) error {
	if f.failing() {
		return ErrStoreDown
	}
	return f.ContentStore.Get(ctx, cid, w)
}
