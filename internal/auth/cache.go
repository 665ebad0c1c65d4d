package auth

import (
	"context"
	"sync"
	"time"
)

var _ TokenCache = (*MemoryCache)(nil)

// MemoryCache is an in-process TokenCache with TTL eviction. A janitor sweeps
// expired records so the map does not grow without bound; Get never returns a
// record past its expiry even before the sweep reaches it.
type MemoryCache struct {
	mu   sync.RWMutex
	recs map[string]TokenRecord
	stop chan struct{}
	once sync.Once
}

// NewMemoryCache creates a cache and starts its eviction janitor.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		recs: make(map[string]TokenRecord),
		stop: make(chan struct{}),
	}
	go c.janitor(time.Minute)
	return c
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now().UTC()
			c.mu.Lock()
			for k, rec := range c.recs {
				if !now.Before(rec.ExpiresAt) {
					delete(c.recs, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Close stops the eviction janitor.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCache) Put(ctx context.Context, rec TokenRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs[rec.Token] = rec
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, token string) (TokenRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.recs[token]
	if !ok {
		return TokenRecord{}, false, nil
	}
	if !time.Now().UTC().Before(rec.ExpiresAt) {
		return TokenRecord{}, false, nil
	}
	return rec, true, nil
}

func (c *MemoryCache) Delete(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.recs, token)
	return nil
}
