package registry

import (
	"context"
	"fmt"
	"sync"

	"nifty-go/internal/model"
)

// TokenAllocator issues globally unique token ids.
type TokenAllocator interface {
	Allocate(ctx context.Context) (model.TokenID, error)
}

// SequenceStore persists the token high-water mark.
type SequenceStore interface {
	ReserveTokens(ctx context.Context, n uint64) (model.TokenID, error)
}

// BlockAllocator hands out ids from an in-memory block and reserves the next
// block from the SequenceStore when the current one runs out. Ids left in a
// block when the process exits are never issued.
type BlockAllocator struct {
	store     SequenceStore
	blockSize uint64

	mu   sync.Mutex
	next model.TokenID
	end  model.TokenID // exclusive
}

// NewBlockAllocator creates an allocator reserving blockSize ids at a time.
func NewBlockAllocator(store SequenceStore, blockSize uint64) *BlockAllocator {
	if blockSize == 0 {
		blockSize = 1
	}
	return &BlockAllocator{store: store, blockSize: blockSize}
}

func (a *BlockAllocator) Allocate(ctx context.Context) (model.TokenID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == a.end {
		first, err := a.store.ReserveTokens(ctx, a.blockSize)
		if err != nil {
			return 0, fmt.Errorf("reserving token block: %w", err)
		}
		a.next = first
		a.end = first + model.TokenID(a.blockSize)
	}

	id := a.next
	a.next++
	return id, nil
}
