package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
	"github.com/fyrsmithlabs/retrieverd/internal/embeddings"
	"github.com/fyrsmithlabs/retrieverd/internal/tenant"
)

func newTestManager(t *testing.T) (*Manager, *stubEmbedder) {
	t.Helper()
	embedder := newStubEmbedder(8)
	m, err := NewManager(Config{Root: t.TempDir()}, embedder, zap.NewNop())
	require.NoError(t, err)
	return m, embedder
}

func currentGeneration(t *testing.T, m *Manager, tenantID string) *generation {
	t.Helper()
	gen, err := m.reader(tenantID)
	require.NoError(t, err)
	return gen
}

func TestUpsert_CreatesStoreLazily(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	count, err := m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "What is your return window?", "30 days"),
		faqDoc("f2", "Do you ship abroad?", "Yes, EU-wide"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	gen := currentGeneration(t, m, "acme")
	assert.Equal(t, 2, gen.index.rows())
	assert.NoError(t, gen.validate())
}

func TestUpsert_VectorsAreUnitNorm(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "q1", "a1"),
		faqDoc("f2", "q2", "a2"),
	})
	require.NoError(t, err)

	gen := currentGeneration(t, m, "acme")
	for _, vec := range gen.index.vectors {
		assert.InDelta(t, 1.0, embeddings.Norm(vec), 1e-6)
	}
}

func TestUpsert_AppendFastPath(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "q1", "a1"),
		faqDoc("f2", "q2", "a2"),
		faqDoc("f3", "q3", "a3"),
	})
	require.NoError(t, err)

	_, err = m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f4", "q4", "a4"),
		faqDoc("f5", "q5", "a5"),
	})
	require.NoError(t, err)

	// Only the two new documents were embedded on the second call.
	docCalls, docTexts, _ := embedder.counts()
	assert.Equal(t, 2, docCalls)
	assert.Equal(t, 5, docTexts)

	gen := currentGeneration(t, m, "acme")
	assert.Equal(t, 5, gen.index.rows())
	assert.Equal(t, 5, gen.size())
	assert.NoError(t, gen.validate())

	// New rows occupy the next free indices.
	assert.Equal(t, 3, gen.rows["f4"])
	assert.Equal(t, 4, gen.rows["f5"])
}

func TestUpsert_CollisionTriggersFullRebuild(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "q1", "a1"),
		faqDoc("f2", "q2", "a2"),
	})
	require.NoError(t, err)

	_, err = m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f2", "q2 updated", "a2 updated"),
		faqDoc("f3", "q3", "a3"),
	})
	require.NoError(t, err)

	// Second call re-embedded the entire merged registry (3 docs).
	docCalls, docTexts, _ := embedder.counts()
	assert.Equal(t, 2, docCalls)
	assert.Equal(t, 2+3, docTexts)

	gen := currentGeneration(t, m, "acme")
	assert.Equal(t, 3, gen.size())
	assert.NoError(t, gen.validate())

	// Collision overwrote f2 and preserved non-colliding content.
	assert.Equal(t, "q2 updated", gen.docs["f2"].Question)
	assert.Equal(t, "q1", gen.docs["f1"].Question)
}

func TestUpsert_DuplicateIDsInBatchLastWins(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// A fresh tenant takes the append path; a repeated id inside the batch
	// must collapse to one row instead of corrupting the row map.
	count, err := m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "first version", "a1"),
		faqDoc("f1", "second version", "a1"),
		faqDoc("f2", "q2", "a2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	gen := currentGeneration(t, m, "acme")
	assert.Equal(t, 2, gen.size())
	assert.NoError(t, gen.validate())
	assert.Equal(t, "second version", gen.docs["f1"].Question)

	// Same behavior when the duplicates do not collide with existing ids
	// and the store is non-empty.
	count, err = m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f3", "old", "a3"),
		faqDoc("f3", "new", "a3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	gen = currentGeneration(t, m, "acme")
	assert.Equal(t, 3, gen.size())
	assert.NoError(t, gen.validate())
	assert.Equal(t, "new", gen.docs["f3"].Question)
}

func TestUpsert_EmbeddingFailureLeavesStateIntact(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", []document.Document{faqDoc("f1", "q1", "a1")})
	require.NoError(t, err)

	embedder.fail(errors.New("model offline"))
	_, err = m.Upsert(ctx, "acme", []document.Document{faqDoc("f2", "q2", "a2")})
	assert.ErrorIs(t, err, ErrIngestionFailed)

	embedder.fail(nil)
	gen := currentGeneration(t, m, "acme")
	assert.Equal(t, 1, gen.size())
	assert.NoError(t, gen.validate())
}

func TestUpsert_Validation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)

	_, err = m.Upsert(ctx, "acme", []document.Document{{Title: "no id"}})
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = m.Upsert(ctx, "../evil", []document.Document{faqDoc("f1", "q", "a")})
	assert.ErrorIs(t, err, tenant.ErrInvalidTenantID)
}

func TestSearch_TenantNotFound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Search(context.Background(), "ghost", "anything", 3)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestSearch_OrderAndTopK(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	docs := []document.Document{
		faqDoc("f1", "returns", "30 days"),
		faqDoc("f2", "shipping", "worldwide"),
		faqDoc("f3", "payment", "cards"),
	}
	embedder.set(docs[0].EmbeddingText(), []float32{1, 0, 0, 0, 0, 0, 0, 0})
	embedder.set(docs[1].EmbeddingText(), []float32{0.8, 0.6, 0, 0, 0, 0, 0, 0})
	embedder.set(docs[2].EmbeddingText(), []float32{0, 1, 0, 0, 0, 0, 0, 0})
	embedder.set("returns query", []float32{1, 0, 0, 0, 0, 0, 0, 0})

	_, err := m.Upsert(ctx, "acme", docs)
	require.NoError(t, err)

	// topK=1 returns the single highest-scoring document.
	results, err := m.Search(ctx, "acme", "returns query", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "f1", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)

	// topK=n returns all n in non-increasing score order.
	results, err = m.Search(ctx, "acme", "returns query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"f1", "f2", "f3"}, []string{results[0].ID, results[1].ID, results[2].ID})
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	// topK beyond corpus size returns all available, unpadded.
	results, err = m.Search(ctx, "acme", "returns query", 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_ResultCarriesFullDocument(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	doc := faqDoc("f1", "What is your return window?", "30 days")
	doc.Attributes = map[string]string{"category": "policy"}
	_, err := m.Upsert(ctx, "acme", []document.Document{doc})
	require.NoError(t, err)

	results, err := m.Search(ctx, "acme", "return window?", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "f1", r.ID)
	assert.Equal(t, "Help: f1", r.Title)
	assert.Equal(t, "What is your return window?", r.Question)
	assert.Equal(t, "30 days", r.Answer)
	assert.Equal(t, map[string]string{"category": "policy"}, r.Attributes)
	assert.Equal(t, doc.ID, r.Document.ID)
}

func TestSearch_LoadsPersistedStoreAfterRestart(t *testing.T) {
	embedder := newStubEmbedder(8)
	root := t.TempDir()
	ctx := context.Background()

	m1, err := NewManager(Config{Root: root}, embedder, zap.NewNop())
	require.NoError(t, err)
	_, err = m1.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "q1", "a1"),
		faqDoc("f2", "q2", "a2"),
	})
	require.NoError(t, err)

	// Fresh manager over the same root simulates a restart.
	m2, err := NewManager(Config{Root: root}, embedder, zap.NewNop())
	require.NoError(t, err)

	results, err := m2.Search(ctx, "acme", "q1", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	gen := currentGeneration(t, m2, "acme")
	assert.NoError(t, gen.validate())
}

func TestList(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.List(ctx, "acme")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "q1", "a1"),
		faqDoc("f2", "q2", "a2"),
	})
	require.NoError(t, err)

	docs, err := m.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	// Registry order is insertion order.
	assert.Equal(t, "f1", docs[0].ID)
	assert.Equal(t, "f2", docs[1].ID)
}

func TestDeleteTenant_Idempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// Deleting a nonexistent tenant is a no-op.
	assert.NoError(t, m.DeleteTenant(ctx, "ghost"))

	_, err := m.Upsert(ctx, "acme", []document.Document{faqDoc("f1", "q1", "a1")})
	require.NoError(t, err)

	assert.NoError(t, m.DeleteTenant(ctx, "acme"))
	// Deleting twice is idempotent.
	assert.NoError(t, m.DeleteTenant(ctx, "acme"))

	_, err = m.Search(ctx, "acme", "q1", 1)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestDeleteDocument_ForcesRebuild(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", []document.Document{
		faqDoc("f1", "q1", "a1"),
		faqDoc("f2", "q2", "a2"),
		faqDoc("f3", "q3", "a3"),
	})
	require.NoError(t, err)

	require.NoError(t, m.DeleteDocument(ctx, "acme", "f2"))

	gen := currentGeneration(t, m, "acme")
	assert.Equal(t, 2, gen.size())
	assert.Equal(t, 2, gen.index.rows())
	assert.NoError(t, gen.validate())

	// No stale row: the deleted document can never come back from search.
	results, err := m.Search(ctx, "acme", "q2", 3)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "f2", r.ID)
	}

	// Deleting an absent id is a no-op; the remaining corpus was re-embedded.
	require.NoError(t, m.DeleteDocument(ctx, "acme", "f2"))
	_, docTexts, _ := embedder.counts()
	assert.Equal(t, 3+2, docTexts)
}

func TestDeleteDocument_LastDocumentLeavesEmptyStore(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", []document.Document{faqDoc("f1", "q1", "a1")})
	require.NoError(t, err)

	require.NoError(t, m.DeleteDocument(ctx, "acme", "f1"))

	results, err := m.Search(ctx, "acme", "q1", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestConcurrentIngestAndSearch(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "acme", []document.Document{faqDoc("seed", "q", "a")})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			id := string(rune('a' + i))
			_, err := m.Upsert(ctx, "acme", []document.Document{faqDoc("doc-"+id, "q"+id, "a"+id)})
			assert.NoError(t, err)
		}
	}()

	// Readers must always observe a consistent generation.
	for i := 0; i < 50; i++ {
		results, err := m.Search(ctx, "acme", "q", 5)
		require.NoError(t, err)
		for _, r := range results {
			assert.NotEmpty(t, r.ID)
		}
	}
	<-done

	gen := currentGeneration(t, m, "acme")
	assert.NoError(t, gen.validate())
	assert.Equal(t, 21, gen.size())
}
