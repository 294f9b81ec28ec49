package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
)

// Store is the full vector store surface the transport needs.
type Store interface {
	Retriever
	Upsert(ctx context.Context, tenantID string, docs []document.Document) (int, error)
	List(ctx context.Context, tenantID string) ([]document.Document, error)
	DeleteTenant(ctx context.Context, tenantID string) error
	DeleteDocument(ctx context.Context, tenantID, docID string) error
}

// PooledStore runs the store's blocking mutations through the shared
// worker pool, so a burst of ingests for one tenant cannot starve the
// embedding backend or disk for everyone else. Reads pass through.
//
// Mutations for one tenant serialize on a per-tenant gate BEFORE taking a
// pool slot. The store's own writer mutex would serialize them anyway, but
// queueing there means every waiter holds a slot; queueing on the gate
// keeps at most one slot per tenant occupied by mutations.
type PooledStore struct {
	store Store
	pool  *Pool

	mu    sync.Mutex
	gates map[string]*sync.Mutex
}

// NewPooledStore wraps store with pool-bounded mutations.
func NewPooledStore(store Store, pool *Pool) (*PooledStore, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PooledStore{store: store, pool: pool, gates: make(map[string]*sync.Mutex)}, nil
}

func (s *PooledStore) gate(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[tenantID]
	if !ok {
		g = &sync.Mutex{}
		s.gates[tenantID] = g
	}
	return g
}

func (s *PooledStore) Upsert(ctx context.Context, tenantID string, docs []document.Document) (int, error) {
	g := s.gate(tenantID)
	g.Lock()
	defer g.Unlock()

	var count int
	err := s.pool.Run(ctx, func(ctx context.Context) error {
		var upsertErr error
		count, upsertErr = s.store.Upsert(ctx, tenantID, docs)
		return upsertErr
	})
	return count, err
}

func (s *PooledStore) DeleteDocument(ctx context.Context, tenantID, docID string) error {
	// Deleting rebuilds the index, so it takes a slot like an ingest.
	g := s.gate(tenantID)
	g.Lock()
	defer g.Unlock()

	return s.pool.Run(ctx, func(ctx context.Context) error {
		return s.store.DeleteDocument(ctx, tenantID, docID)
	})
}

func (s *PooledStore) List(ctx context.Context, tenantID string) ([]document.Document, error) {
	return s.store.List(ctx, tenantID)
}

func (s *PooledStore) DeleteTenant(ctx context.Context, tenantID string) error {
	return s.store.DeleteTenant(ctx, tenantID)
}
