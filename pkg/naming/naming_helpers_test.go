package naming

import (
	"context"
	"fmt"
	"sync"

	"github.com/wehubfusion/Hodos/pkg/content"
)

// stubTranslator renders keys in brackets so tests can tell labels from data.
type stubTranslator struct{}

func (stubTranslator) Translate(key string, args ...any) string {
	if len(args) == 0 {
		return "[" + key + "]"
	}
	return fmt.Sprintf("[%s %v]", key, args)
}

// countingRepository wraps a repository and counts lookups per access mode.
type countingRepository struct {
	inner content.Repository
	err   error

	mu    sync.Mutex
	calls map[content.Access]int
}

func newCountingRepository(items ...*content.Item) *countingRepository {
	return &countingRepository{
		inner: content.NewMemoryRepository(items...),
		calls: make(map[content.Access]int),
	}
}

func (c *countingRepository) GetItem(ctx context.Context, id content.RecordID, access content.Access) (*content.Item, error) {
	c.mu.Lock()
	c.calls[access]++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.GetItem(ctx, id, access)
}

func (c *countingRepository) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}
