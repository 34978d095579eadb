package cartstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	defaultKeyPrefix = "cart:"
	defaultTTL       = 30 * 24 * time.Hour
)

// Persister stores cart items between visits.
type Persister interface {
	Load(ctx context.Context, key string) ([]Item, bool, error)
	Save(ctx context.Context, key string, items []Item) error
	Delete(ctx context.Context, key string) error
}

// JSONCache is the subset of the shared cache used for cart persistence.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type persistedCart struct {
	Items []Item `json:"items"`
}

// CachePersister keeps carts in the shared Redis cache as JSON documents.
type CachePersister struct {
	cache  JSONCache
	prefix string
	ttl    time.Duration
}

// NewCachePersister constructs a persister writing under prefix with the given TTL.
func NewCachePersister(cache JSONCache, prefix string, ttl time.Duration) *CachePersister {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CachePersister{cache: cache, prefix: prefix, ttl: ttl}
}

// Load implements Persister.
func (p *CachePersister) Load(ctx context.Context, key string) ([]Item, bool, error) {
	var doc persistedCart
	found, err := p.cache.GetJSON(ctx, p.prefix+key, &doc)
	if err != nil || !found {
		return nil, false, err
	}
	return doc.Items, true, nil
}

// Save implements Persister.
func (p *CachePersister) Save(ctx context.Context, key string, items []Item) error {
	return p.cache.SetJSON(ctx, p.prefix+key, persistedCart{Items: items}, p.ttl)
}

// Delete implements Persister.
func (p *CachePersister) Delete(ctx context.Context, key string) error {
	return p.cache.Delete(ctx, p.prefix+key)
}

// MemoryPersister keeps carts in process memory; intended for tests and local development.
type MemoryPersister struct {
	mu    sync.Mutex
	carts map[string][]Item
}

// NewMemoryPersister constructs an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{carts: make(map[string][]Item)}
}

// Load implements Persister.
func (p *MemoryPersister) Load(_ context.Context, key string) ([]Item, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := p.carts[key]
	if !ok {
		return nil, false, nil
	}
	return cloneItems(items), true, nil
}

// Save implements Persister.
func (p *MemoryPersister) Save(_ context.Context, key string, items []Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.carts[key] = cloneItems(items)
	return nil
}

// Delete implements Persister.
func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.carts, key)
	return nil
}
