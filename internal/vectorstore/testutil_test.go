package vectorstore

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
	"github.com/fyrsmithlabs/retrieverd/internal/embeddings"
)

// stubEmbedder returns deterministic vectors and counts embedding calls so
// tests can assert the append path never re-embeds existing documents.
//
// Vectors registered via set take priority; unregistered texts get a
// hash-derived vector. All returned vectors are deliberately NOT
// normalized, exercising the store's normalize-on-receipt behavior.
type stubEmbedder struct {
	mu         sync.Mutex
	dim        int
	fixed      map[string][]float32
	docCalls   int
	docTexts   int
	queryCalls int
	err        error
}

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{dim: dim, fixed: make(map[string][]float32)}
}

func (e *stubEmbedder) set(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixed[text] = vec
}

func (e *stubEmbedder) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *stubEmbedder) counts() (docCalls, docTexts, queryCalls int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docCalls, e.docTexts, e.queryCalls
}

func (e *stubEmbedder) vector(text string) []float32 {
	if v, ok := e.fixed[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, e.dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000) / 500.0
	}
	return vec
}

func (e *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.docCalls++
	e.docTexts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.queryCalls++
	return e.vector(text), nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

// faqDoc builds an FAQ-shaped document for tests.
func faqDoc(id, question, answer string) document.Document {
	return document.Document{
		ID:       id,
		Title:    "Help: " + id,
		Question: question,
		Answer:   answer,
		URL:      "https://example.com/" + id,
		Tags:     []string{"help"},
	}
}
