package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
	"github.com/fyrsmithlabs/retrieverd/internal/embeddings"
	"github.com/fyrsmithlabs/retrieverd/internal/tenant"
)

var tracer = otel.Tracer("retrieverd.vectorstore")

// defaultTopK is used when a caller passes a non-positive topK.
const defaultTopK = 4

// Config holds vector store configuration.
type Config struct {
	// Root is the directory holding per-tenant artifact namespaces.
	Root string
}

// handle is the per-tenant concurrency unit: a writer mutex serializing
// the merge-rebuild-persist sequence, and an atomic generation pointer
// that readers load without blocking on writers.
type handle struct {
	mu    sync.Mutex
	state atomic.Pointer[generation]
}

// Manager owns all tenant stores. Tenant stores are created lazily on
// first ingest and loaded from persisted artifacts on first search after
// a restart.
type Manager struct {
	config   Config
	embedder embeddings.Embedder
	logger   *zap.Logger
	metrics  *Metrics

	mu      sync.Mutex
	tenants map[string]*handle
}

// NewManager creates a Manager rooted at config.Root.
func NewManager(config Config, embedder embeddings.Embedder, logger *zap.Logger) (*Manager, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(config.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}

	return &Manager{
		config:   config,
		embedder: embedder,
		logger:   logger,
		metrics:  NewMetrics(logger),
		tenants:  make(map[string]*handle),
	}, nil
}

func (m *Manager) handleFor(tenantID string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.tenants[tenantID]
	if !ok {
		h = &handle{}
		m.tenants[tenantID] = h
	}
	return h
}

func (m *Manager) tenantDir(tenantID string) string {
	return filepath.Join(m.config.Root, tenantID)
}

// loadLocked loads the tenant's generation from disk into the handle.
// Callers must hold h.mu. Returns fs.ErrNotExist when nothing is persisted.
func (m *Manager) loadLocked(h *handle, tenantID string) (*generation, error) {
	if gen := h.state.Load(); gen != nil {
		return gen, nil
	}
	gen, err := loadGeneration(m.tenantDir(tenantID))
	if err != nil {
		return nil, err
	}
	h.state.Store(gen)
	return gen, nil
}

// Upsert inserts or updates documents for a tenant and returns the number
// of documents ingested.
//
// When none of the incoming ids exist in a non-empty store, the new unit
// vectors are appended at the next free rows without re-embedding existing
// documents. Any id collision triggers a full rebuild: the registry is
// merged, the entire corpus re-embedded, and the index and row map rebuilt
// from scratch. Either way the three artifacts are persisted as a single
// new generation before readers can observe it.
func (m *Manager) Upsert(ctx context.Context, tenantID string, docs []document.Document) (count int, err error) {
	ctx, span := tracer.Start(ctx, "vectorstore.upsert")
	defer span.End()
	start := time.Now()
	rebuild := false
	defer func() {
		m.metrics.RecordUpsert(ctx, time.Since(start), len(docs), rebuild, err)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err = tenant.ValidateID(tenantID); err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, ErrEmptyDocuments
	}
	for i := range docs {
		if docs[i].ID == "" {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, document.ErrMissingID)
		}
		if docs[i].Kind == "" {
			docs[i].Kind = document.DetectKind(docs[i])
		}
	}
	docs = dedupeByID(docs)
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("document.count", len(docs)),
	)

	h := m.handleFor(tenantID)
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := m.loadLocked(h, tenantID)
	if errors.Is(err, fs.ErrNotExist) {
		cur, err = newEmptyGeneration(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: loading tenant state: %v", ErrIngestionFailed, err)
	}

	var next *generation
	if cur.size() > 0 && cur.hasAnyID(docs) {
		rebuild = true
		next, err = m.rebuildGeneration(ctx, cur, docs)
	} else {
		next, err = m.appendGeneration(ctx, cur, docs)
	}
	if err != nil {
		return 0, err
	}

	tenantDir := m.tenantDir(tenantID)
	if err = os.MkdirAll(tenantDir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}
	if err = saveGeneration(tenantDir, next); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}

	h.state.Store(next)
	m.metrics.SetRowCount(ctx, tenantID, next.size())
	m.logger.Info("ingested documents",
		zap.String("tenant", tenantID),
		zap.Int("count", len(docs)),
		zap.Int("rows", next.size()),
		zap.Bool("rebuild", rebuild),
	)
	return len(docs), nil
}

// dedupeByID collapses repeated ids within one batch, keeping first-seen
// order with the last occurrence winning. Without this, a batch repeating
// an id could reach the append path and claim two rows for one id.
func dedupeByID(docs []document.Document) []document.Document {
	index := make(map[string]int, len(docs))
	out := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if i, ok := index[doc.ID]; ok {
			out[i] = doc
			continue
		}
		index[doc.ID] = len(out)
		out = append(out, doc)
	}
	return out
}

// appendGeneration embeds only the incoming documents and extends the
// current generation.
func (m *Manager) appendGeneration(ctx context.Context, cur *generation, docs []document.Document) (*generation, error) {
	vectors, err := m.embedDocs(ctx, docs)
	if err != nil {
		return nil, err
	}
	next, err := cur.appended(docs, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}
	return next, nil
}

// rebuildGeneration merges the incoming documents into the registry and
// re-embeds the entire corpus. Consistency over efficiency: the flat
// index cannot update one row in place.
func (m *Manager) rebuildGeneration(ctx context.Context, cur *generation, docs []document.Document) (*generation, error) {
	merged := cur.mergedRegistry(docs)
	vectors, err := m.embedDocs(ctx, merged)
	if err != nil {
		return nil, err
	}
	next, err := rebuilt(merged, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}
	return next, nil
}

// embedDocs embeds and normalizes the documents' canonical texts.
func (m *Manager) embedDocs(ctx context.Context, docs []document.Document) ([][]float32, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].EmbeddingText()
	}
	vectors, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d documents", ErrIngestionFailed, len(vectors), len(texts))
	}
	for i := range vectors {
		embeddings.Normalize(vectors[i])
	}
	return vectors, nil
}

// Search runs an exact top-k cosine search against a tenant's store.
//
// Results are ordered by descending score with document id as the
// deterministic tie-break. A topK larger than the corpus returns all
// available results, unpadded.
func (m *Manager) Search(ctx context.Context, tenantID, query string, topK int) (results []SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "vectorstore.search")
	defer span.End()
	start := time.Now()
	defer func() {
		m.metrics.RecordSearch(ctx, time.Since(start), len(results), err)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err = tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("top_k", topK),
	)

	gen, err := m.reader(tenantID)
	if err != nil {
		return nil, err
	}

	vec, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	embeddings.Normalize(vec)

	if gen.index.dim != 0 && len(vec) != gen.index.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vec), gen.index.dim)
	}

	scored := gen.index.search(vec, topK)
	results = make([]SearchResult, 0, len(scored))
	for _, s := range scored {
		id := gen.rowIDs[s.row]
		doc, ok := gen.docs[id]
		if !ok {
			// Row without a registry entry signals no match; skip it.
			continue
		}
		results = append(results, newSearchResult(doc, s.score))
	}
	sortResults(results)
	return results, nil
}

// reader returns the tenant's current generation, loading persisted
// artifacts on first access. Returns ErrTenantNotFound when no store has
// been persisted for the tenant.
func (m *Manager) reader(tenantID string) (*generation, error) {
	h := m.handleFor(tenantID)
	if gen := h.state.Load(); gen != nil {
		return gen, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	gen, err := m.loadLocked(h, tenantID)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading tenant state: %w", err)
	}
	return gen, nil
}

// List returns a tenant's documents in registry order.
func (m *Manager) List(ctx context.Context, tenantID string) ([]document.Document, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	gen, err := m.reader(tenantID)
	if err != nil {
		return nil, err
	}
	return gen.registryDocs(), nil
}

// DeleteTenant removes a tenant's whole namespace: persisted artifacts
// and in-memory state. Deleting a nonexistent tenant is a no-op, and
// deleting twice is idempotent.
func (m *Manager) DeleteTenant(ctx context.Context, tenantID string) error {
	if err := tenant.ValidateID(tenantID); err != nil {
		return err
	}

	h := m.handleFor(tenantID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.RemoveAll(m.tenantDir(tenantID)); err != nil {
		return fmt.Errorf("removing tenant namespace: %w", err)
	}
	h.state.Store(nil)

	m.mu.Lock()
	delete(m.tenants, tenantID)
	m.mu.Unlock()

	m.logger.Info("deleted tenant", zap.String("tenant", tenantID))
	return nil
}

// DeleteDocument removes one document from a tenant's registry and forces
// a full rebuild so no stale index row remains searchable. Removing an id
// that is not present is a no-op.
func (m *Manager) DeleteDocument(ctx context.Context, tenantID, docID string) error {
	if err := tenant.ValidateID(tenantID); err != nil {
		return err
	}

	h := m.handleFor(tenantID)
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := m.loadLocked(h, tenantID)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return fmt.Errorf("loading tenant state: %w", err)
	}

	if _, ok := cur.rows[docID]; !ok {
		return nil
	}

	remaining := make([]document.Document, 0, cur.size()-1)
	for _, doc := range cur.registryDocs() {
		if doc.ID != docID {
			remaining = append(remaining, doc)
		}
	}

	var next *generation
	if len(remaining) == 0 {
		next = newEmptyGeneration()
	} else {
		next, err = m.rebuildGeneration(ctx, newEmptyGeneration(), remaining)
		if err != nil {
			return err
		}
	}

	if err := saveGeneration(m.tenantDir(tenantID), next); err != nil {
		return fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}
	h.state.Store(next)
	m.metrics.SetRowCount(ctx, tenantID, next.size())

	m.logger.Info("deleted document",
		zap.String("tenant", tenantID),
		zap.String("doc_id", docID),
		zap.Int("rows", next.size()),
	)
	return nil
}
