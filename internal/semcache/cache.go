// Package semcache provides a per-tenant, TTL-bounded, similarity-indexed
// answer cache.
//
// Entries are keyed by (tenant, literal query text) and matched by cosine
// similarity of query embeddings, so a paraphrase of a cached query can hit
// without being lexically identical. Cache state is process-lifetime only
// and never persisted.
package semcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/embeddings"
)

// ErrEmbedFailed indicates the query could not be embedded during a cache
// lookup. It must surface to the caller so a lookup failure is not mistaken
// for a clean miss.
var ErrEmbedFailed = errors.New("cache query embedding failed")

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// Config holds semantic cache configuration.
type Config struct {
	// TTL is the maximum entry age before it is treated as absent.
	TTL time.Duration

	// SimilarityThreshold is the minimum cosine similarity for a hit.
	SimilarityThreshold float64

	// MaxEntriesPerTenant bounds per-tenant growth; the oldest entry is
	// evicted when a Put would exceed it. Zero means unbounded.
	MaxEntriesPerTenant int
}

// entry is one cached answer with its unit query embedding.
type entry struct {
	answer     string
	embedding  []float32
	insertedAt time.Time
}

// Cache is a thread-safe semantic answer cache.
//
// Lookups scan all live entries for the tenant, so Get is O(entries for
// tenant). That is acceptable for TTL-bounded per-tenant working sets and
// is a known scalability bound, not an oversight.
type Cache struct {
	config   Config
	embedder embeddings.Embedder
	logger   *zap.Logger

	mu      sync.Mutex
	tenants map[string]map[string]*entry
}

// New creates a semantic cache.
func New(config Config, embedder embeddings.Embedder, logger *zap.Logger) (*Cache, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if config.TTL <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if config.SimilarityThreshold <= 0 || config.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in (0, 1]")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{
		config:   config,
		embedder: embedder,
		logger:   logger,
		tenants:  make(map[string]map[string]*entry),
	}, nil
}

// Get returns the cached answer for a query semantically close to a live
// entry of the tenant.
//
// Expired entries found during the scan are evicted immediately, even
// though the lookup will not match them. An embedding failure surfaces as
// ErrEmbedFailed; callers should fall back to retrieval on it.
func (c *Cache) Get(ctx context.Context, tenantID, query string) (string, bool, error) {
	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrEmbedFailed, err)
	}
	embeddings.Normalize(vec)

	now := timeNow()

	c.mu.Lock()
	defer c.mu.Unlock()

	queries := c.tenants[tenantID]
	bestSim := float32(-1)
	bestAnswer := ""
	for q, e := range queries {
		if now.Sub(e.insertedAt) > c.config.TTL {
			delete(queries, q)
			continue
		}
		if sim := embeddings.Dot(vec, e.embedding); sim > bestSim {
			bestSim = sim
			bestAnswer = e.answer
		}
	}

	if float64(bestSim) >= c.config.SimilarityThreshold {
		return bestAnswer, true, nil
	}
	return "", false, nil
}

// Put stores an answer under the literal incoming query text, overwriting
// an identical key. An embedding failure drops the write silently; caching
// is an optimization and must never fail a request that already has an
// answer.
func (c *Cache) Put(ctx context.Context, tenantID, query, answer string) {
	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		c.logger.Debug("dropping cache write, embedding failed",
			zap.String("tenant", tenantID),
			zap.Error(err),
		)
		return
	}
	embeddings.Normalize(vec)

	c.mu.Lock()
	defer c.mu.Unlock()

	queries, ok := c.tenants[tenantID]
	if !ok {
		queries = make(map[string]*entry)
		c.tenants[tenantID] = queries
	}

	if c.config.MaxEntriesPerTenant > 0 {
		if _, exists := queries[query]; !exists && len(queries) >= c.config.MaxEntriesPerTenant {
			c.evictOldestLocked(queries)
		}
	}

	queries[query] = &entry{
		answer:     answer,
		embedding:  vec,
		insertedAt: timeNow(),
	}
}

// DeleteTenant drops all cached entries for a tenant.
func (c *Cache) DeleteTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tenants, tenantID)
}

// Len returns the number of live entries for a tenant, counting expired
// entries that have not yet been lazily evicted.
func (c *Cache) Len(tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tenants[tenantID])
}

// evictOldestLocked removes the entry with the oldest insertion time.
// Callers must hold c.mu.
func (c *Cache) evictOldestLocked(queries map[string]*entry) {
	var oldestKey string
	var oldest time.Time
	first := true
	for q, e := range queries {
		if first || e.insertedAt.Before(oldest) {
			first = false
			oldestKey = q
			oldest = e.insertedAt
		}
	}
	if !first {
		delete(queries, oldestKey)
	}
}
