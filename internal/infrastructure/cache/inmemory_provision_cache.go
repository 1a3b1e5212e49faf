package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryProvisionCache keeps provisioned namespaces in process memory.
// Each instance learns independently; this only costs one extra DDL round trip per instance.
type InMemoryProvisionCache struct {
	mu        sync.RWMutex
	entries   map[string]time.Time
	ttl       time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryProvisionCache creates the cache and starts its cleanup goroutine.
// A zero ttl selects DefaultTTL.
func NewInMemoryProvisionCache(ttl time.Duration) *InMemoryProvisionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &InMemoryProvisionCache{
		entries:  make(map[string]time.Time),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

// Known reports whether namespace was remembered and has not expired
func (c *InMemoryProvisionCache) Known(_ context.Context, namespace string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiresAt, ok := c.entries[namespace]
	return ok && time.Now().Before(expiresAt), nil
}

// Remember marks namespace as provisioned for the cache ttl
func (c *InMemoryProvisionCache) Remember(_ context.Context, namespace string) error {
	c.mu.Lock()
	c.entries[namespace] = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

// Forget drops namespace so the next borrow re-checks it
func (c *InMemoryProvisionCache) Forget(_ context.Context, namespace string) error {
	c.mu.Lock()
	delete(c.entries, namespace)
	c.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryProvisionCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryProvisionCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryProvisionCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for ns, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, ns)
		}
	}
}

// Size returns the number of entries (for testing/monitoring)
func (c *InMemoryProvisionCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ ProvisionCache = (*InMemoryProvisionCache)(nil)
