package content

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository, used for tests and for
// fixture-driven report rendering.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[RecordID]*Item
}

// NewMemoryRepository creates a repository seeded with items.
func NewMemoryRepository(items ...*Item) *MemoryRepository {
	r := &MemoryRepository{items: make(map[RecordID]*Item, len(items))}
	for _, item := range items {
		r.Put(item)
	}
	return r
}

// Put stores a copy of item, replacing any previous item with the same ID.
// Items with a nil ID are ignored.
func (r *MemoryRepository) Put(item *Item) {
	if item == nil || item.ID.IsNil() {
		return
	}
	cp := *item
	r.mu.Lock()
	r.items[item.ID] = &cp
	r.mu.Unlock()
}

// Delete removes the item with the given ID.
func (r *MemoryRepository) Delete(id RecordID) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

// GetItem implements Repository.
func (r *MemoryRepository) GetItem(ctx context.Context, id RecordID, access Access) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	item, ok := r.items[id]
	r.mu.RUnlock()

	if !ok || !access.Permits(item) {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}
