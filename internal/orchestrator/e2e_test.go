package orchestrator

import (
	"context"
	"hash/fnv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
	"github.com/fyrsmithlabs/retrieverd/internal/semcache"
	"github.com/fyrsmithlabs/retrieverd/internal/vectorstore"
)

// hashEmbedder derives a deterministic vector from the text, so identical
// texts always embed identically across the store and the cache.
type hashEmbedder struct{ dim int }

func (e hashEmbedder) vector(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, e.dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/500.0 - 1.0
	}
	return vec
}

func (e hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

// TestQueryPipeline_EndToEnd drives the real store and cache through the
// full ingest-query-repeat flow: the first query retrieves and generates,
// the identical repeat is served from the semantic cache with no context.
func TestQueryPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	emb := hashEmbedder{dim: 16}

	store, err := vectorstore.NewManager(vectorstore.Config{Root: t.TempDir()}, emb, nil)
	require.NoError(t, err)

	cache, err := semcache.New(semcache.Config{
		TTL:                 30 * time.Minute,
		SimilarityThreshold: 0.92,
	}, emb, nil)
	require.NoError(t, err)

	ans := &fakeAnswerer{answer: "30 days"}

	pool, err := NewPool(4)
	require.NoError(t, err)
	o, err := New(Config{Timeout: 5 * time.Second, DefaultTopK: 4}, store, ans, cache, pool, nil)
	require.NoError(t, err)

	count, err := store.Upsert(ctx, "acme", []document.Document{{
		ID:       "f1",
		Question: "What is your return window?",
		Answer:   "30 days",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	first, err := o.Query(ctx, "acme", "return window?", 0)
	require.NoError(t, err)
	assert.Equal(t, StrategyRAG, first.Strategy)
	assert.Equal(t, "30 days", first.Answer)
	require.Len(t, first.Context, 1)
	assert.Equal(t, "f1", first.Context[0].ID)
	assert.Equal(t, 1, ans.calls)

	second, err := o.Query(ctx, "acme", "return window?", 0)
	require.NoError(t, err)
	assert.Equal(t, StrategyCache, second.Strategy)
	assert.Equal(t, "30 days", second.Answer)
	assert.Empty(t, second.Context)
	assert.Equal(t, 1, ans.calls, "cache hit must not re-generate")
}
