// Package orchestrator runs the query pipeline: semantic cache lookup,
// exact top-k retrieval, grounded answer generation, and cache write-back.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/answerer"
	"github.com/fyrsmithlabs/retrieverd/internal/vectorstore"
)

var tracer = otel.Tracer("retrieverd.orchestrator")

// Answer strategies reported on query results.
const (
	StrategyCache = "cache"
	StrategyRAG   = "rag"
)

// Retriever is the read side of the vector store used by the pipeline.
type Retriever interface {
	Search(ctx context.Context, tenantID, query string, topK int) ([]vectorstore.SearchResult, error)
}

// AnswerCache is the semantic cache used by the pipeline.
type AnswerCache interface {
	Get(ctx context.Context, tenantID, query string) (string, bool, error)
	Put(ctx context.Context, tenantID, query, answer string)
}

// Config holds pipeline configuration.
type Config struct {
	// Timeout bounds the whole cache-retrieve-generate pipeline per query.
	Timeout time.Duration

	// DefaultTopK is used when the request does not specify top_k.
	DefaultTopK int
}

// Result is the outcome of one query.
type Result struct {
	Answer   string                     `json:"answer"`
	Strategy string                     `json:"strategy"`
	Context  []vectorstore.SearchResult `json:"context,omitempty"`
	Latency  time.Duration              `json:"-"`
}

// Orchestrator coordinates cache, retrieval, and generation for queries.
type Orchestrator struct {
	config   Config
	store    Retriever
	cache    AnswerCache
	answerer answerer.Answerer
	pool     *Pool
	logger   *zap.Logger
	metrics  *Metrics
}

// New creates an orchestrator. Cache may be nil to disable caching.
func New(config Config, store Retriever, ans answerer.Answerer, cache AnswerCache, pool *Pool, logger *zap.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if ans == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if config.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if config.DefaultTopK <= 0 {
		return nil, fmt.Errorf("default top-k must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		config:   config,
		store:    store,
		cache:    cache,
		answerer: ans,
		pool:     pool,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

// Query answers a tenant query.
//
// The pipeline is: semantic cache lookup, then exact top-k retrieval, then
// grounded generation, then best-effort cache write-back. A cache lookup
// failure downgrades to a miss; retrieval and generation failures fail the
// query. The whole pipeline runs under the configured deadline.
func (o *Orchestrator) Query(ctx context.Context, tenantID, query string, topK int) (result *Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "orchestrator.query",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("query.top_k", topK),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		if result != nil {
			result.Latency = time.Since(start)
			o.metrics.RecordQuery(ctx, result.Strategy, result.Latency, nil)
		} else {
			o.metrics.RecordQuery(ctx, StrategyRAG, time.Since(start), err)
		}
	}()

	if topK <= 0 {
		topK = o.config.DefaultTopK
	}

	if o.cache != nil {
		answer, hit, cacheErr := o.cache.Get(ctx, tenantID, query)
		if cacheErr != nil {
			// A broken cache must not break queries. Treat as a miss.
			o.logger.Warn("cache lookup failed, falling back to retrieval",
				zap.String("tenant", tenantID),
				zap.Error(cacheErr),
			)
		} else if hit {
			span.SetAttributes(attribute.String("query.strategy", StrategyCache))
			return &Result{Answer: answer, Strategy: StrategyCache}, nil
		}
	}

	var hits []vectorstore.SearchResult
	err = o.pool.Run(ctx, func(ctx context.Context) error {
		var searchErr error
		hits, searchErr = o.store.Search(ctx, tenantID, query, topK)
		return searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	answer, err := o.answerer.Answer(ctx, query, hits)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	if o.cache != nil {
		o.cache.Put(ctx, tenantID, query, answer)
	}

	span.SetAttributes(
		attribute.String("query.strategy", StrategyRAG),
		attribute.Int("query.context_docs", len(hits)),
	)
	return &Result{Answer: answer, Strategy: StrategyRAG, Context: hits}, nil
}
