package orchestrator

import (
	"context"
	"fmt"
)

// Pool bounds the number of concurrently executing blocking calls
// (embedding requests, index scans, artifact writes) across all tenants.
//
// It is a counting semaphore, not a goroutine pool: callers run fn on their
// own goroutine once a slot is acquired, so per-request context and stack
// traces stay intact.
type Pool struct {
	slots chan struct{}
}

// NewPool creates a pool with the given number of slots.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	return &Pool{slots: make(chan struct{}, size)}, nil
}

// Run executes fn once a slot is free. If ctx is done before a slot frees
// up, fn never runs and the context error is returned.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn(ctx)
}
