package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is an in-process TTL map.
type Cache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
}

type entry struct {
	val any
	exp time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache{
		ttl: ttl,
		m:   make(map[string]entry),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	now := time.Now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed it
		if cur, ok := c.m[key]; ok && now.After(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.val, true
}

func (c *Cache) Set(key string, val any) {
	c.SetWithTTL(key, val, c.ttl)
}

func (c *Cache) SetWithTTL(key string, val any, ttl time.Duration) {
	c.mu.Lock()
	c.m[key] = entry{val: val, exp: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// SetIfAbsent stores val unless a live entry exists, reporting whether it did.
func (c *Cache) SetIfAbsent(key string, val any, ttl time.Duration) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.m[key]; ok && !now.After(e.exp) {
		return false
	}
	c.m[key] = entry{val: val, exp: now.Add(ttl)}
	return true
}

// CompareAndDelete removes key only while it still maps to val.
func (c *Cache) CompareAndDelete(key string, val any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok || e.val != val {
		return false
	}
	delete(c.m, key)
	return true
}

// LocalLock is a single-process lock with expiry, used when redis is not
// configured.
type LocalLock struct {
	c *Cache
}

func NewLocalLock() *LocalLock {
	return &LocalLock{c: New(time.Minute)}
}

type lockToken struct{ _ byte }

func (l *LocalLock) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	tok := &lockToken{}
	if !l.c.SetIfAbsent(key, tok, ttl) {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.c.CompareAndDelete(key, tok) })
	}, true, nil
}
