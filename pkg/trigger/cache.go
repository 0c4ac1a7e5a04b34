package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/replyfleet/replyfleet/pkg/models"
)

// Source fetches the current trigger list for a user, in insertion order.
type Source interface {
	Triggers(ctx context.Context, telegramID int64) ([]models.Trigger, error)
}

type cacheEntry struct {
	triggers []models.Trigger
	fetched  time.Time
}

// Cache is a short-TTL read-through cache over a Source. It bounds the
// staleness of trigger edits without a registry round trip per message.
type Cache struct {
	source Source
	ttl    time.Duration

	mu      sync.Mutex
	entries map[int64]cacheEntry
	now     func() time.Time
}

// NewCache wraps source with a TTL cache. TTLs above ten seconds would let
// deleted triggers keep firing noticeably long, so ttl is clamped.
func NewCache(source Source, ttl time.Duration) *Cache {
	if ttl <= 0 || ttl > 10*time.Second {
		ttl = 10 * time.Second
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		entries: make(map[int64]cacheEntry),
		now:     time.Now,
	}
}

// Triggers returns the cached list when fresh, otherwise refetches. A fetch
// failure with no cached entry propagates; the caller skips the message.
func (c *Cache) Triggers(ctx context.Context, telegramID int64) ([]models.Trigger, error) {
	c.mu.Lock()
	entry, ok := c.entries[telegramID]
	fresh := ok && c.now().Sub(entry.fetched) < c.ttl
	c.mu.Unlock()

	if fresh {
		return entry.triggers, nil
	}

	triggers, err := c.source.Triggers(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[telegramID] = cacheEntry{triggers: triggers, fetched: c.now()}
	c.mu.Unlock()
	return triggers, nil
}

// Invalidate drops the cached entry for one user.
func (c *Cache) Invalidate(telegramID int64) {
	c.mu.Lock()
	delete(c.entries, telegramID)
	c.mu.Unlock()
}
