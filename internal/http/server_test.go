package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/answerer"
	"github.com/fyrsmithlabs/retrieverd/internal/config"
	"github.com/fyrsmithlabs/retrieverd/internal/document"
	"github.com/fyrsmithlabs/retrieverd/internal/orchestrator"
	"github.com/fyrsmithlabs/retrieverd/internal/tenant"
	"github.com/fyrsmithlabs/retrieverd/internal/vectorstore"
)

type fakeStore struct {
	docs       []document.Document
	upsertErr  error
	listErr    error
	deleteErr  error
	lastTenant string
	lastDocID  string
	deleted    []string
}

func (f *fakeStore) Upsert(ctx context.Context, tenantID string, docs []document.Document) (int, error) {
	f.lastTenant = tenantID
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.docs = append(f.docs, docs...)
	return len(docs), nil
}

func (f *fakeStore) List(ctx context.Context, tenantID string) ([]document.Document, error) {
	f.lastTenant = tenantID
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.docs, nil
}

func (f *fakeStore) DeleteTenant(ctx context.Context, tenantID string) error {
	f.lastTenant = tenantID
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, tenantID)
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, tenantID, docID string) error {
	f.lastTenant = tenantID
	f.lastDocID = docID
	return f.deleteErr
}

type fakeQueries struct {
	result *orchestrator.Result
	err    error
	lastK  int
	lastQ  string
}

func (f *fakeQueries) Query(ctx context.Context, tenantID, query string, topK int) (*orchestrator.Result, error) {
	f.lastQ = query
	f.lastK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeInvalidator struct {
	dropped []string
}

func (f *fakeInvalidator) DeleteTenant(tenantID string) {
	f.dropped = append(f.dropped, tenantID)
}

func newTestServer(t *testing.T, store *fakeStore, queries *fakeQueries, cache CacheInvalidator) *Server {
	t.Helper()
	s, err := NewServer(config.ServerConfig{Host: "localhost", Port: 0}, store, queries, cache, zap.NewNop())
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(config.ServerConfig{}, nil, &fakeQueries{}, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewServer(config.ServerConfig{}, &fakeStore{}, nil, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewServer(config.ServerConfig{}, &fakeStore{}, &fakeQueries{}, nil, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngest(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, &fakeQueries{}, nil)

	body := `{"documents":[{"id":"faq-1","question":"q","answer":"a"}]}`
	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/documents", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ingested":1}`, rec.Body.String())
	assert.Equal(t, "acme", store.lastTenant)
}

func TestIngest_AssignsMissingIDs(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, &fakeQueries{}, nil)

	body := `{"documents":[{"question":"q","answer":"a"},{"id":"keep-me","question":"q2","answer":"a2"}]}`
	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/documents", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.docs, 2)
	assert.NotEmpty(t, store.docs[0].ID)
	assert.Equal(t, "keep-me", store.docs[1].ID)
}

func TestIngest_DatasetTypePresetsKind(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, &fakeQueries{}, nil)

	body := `{"dataset_type":"products","documents":[{"id":"p1","title":"Saddle","attributes":{"size":"17in"}},{"id":"f1","kind":"faq","question":"q","answer":"a"}]}`
	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/documents", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.docs, 2)
	assert.Equal(t, document.KindAttribute, store.docs[0].Kind)
	assert.Equal(t, document.KindFAQ, store.docs[1].Kind)
}

func TestIngest_InvalidBody(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/documents", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_ValidationErrorsMapTo400(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"empty documents", vectorstore.ErrEmptyDocuments},
		{"invalid document", vectorstore.ErrInvalidDocument},
		{"missing id", document.ErrMissingID},
		{"invalid tenant", tenant.ErrInvalidTenantID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeStore{upsertErr: tt.err}, &fakeQueries{}, nil)
			rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/documents", `{"documents":[]}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListDocuments(t *testing.T) {
	store := &fakeStore{docs: []document.Document{{ID: "d1"}}}
	s := newTestServer(t, store, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodGet, "/api/v1/tenants/acme/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListDocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "d1", resp.Documents[0].ID)
}

func TestListDocuments_EmptyTenantIsEmptyArray(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodGet, "/api/v1/tenants/acme/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documents":[]`)
}

func TestListDocuments_UnknownTenant(t *testing.T) {
	s := newTestServer(t, &fakeStore{listErr: vectorstore.ErrTenantNotFound}, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodGet, "/api/v1/tenants/ghost/documents", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuery(t *testing.T) {
	queries := &fakeQueries{result: &orchestrator.Result{
		Answer:   "42 seats.",
		Strategy: orchestrator.StrategyRAG,
		Context:  []vectorstore.SearchResult{{ID: "d1", Score: 0.9}},
		Latency:  120 * time.Millisecond,
	}}
	s := newTestServer(t, &fakeStore{}, queries, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/query", `{"query":"how many seats?","top_k":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42 seats.", resp.Answer)
	assert.Equal(t, "rag", resp.Strategy)
	assert.Equal(t, int64(120), resp.LatencyMS)
	require.Len(t, resp.Context, 1)
	assert.Equal(t, 2, queries.lastK)
	assert.Equal(t, "how many seats?", queries.lastQ)
}

func TestQuery_MissingQueryField(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_TenantNotFound(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{err: vectorstore.ErrTenantNotFound}, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/ghost/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"tenant_not_found"`)
}

func TestQuery_Timeout(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{err: context.DeadlineExceeded}, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestQuery_GenerationFailureMapsTo502(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{err: answerer.ErrGenerationFailed}, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"generation_failed"`)
}

func TestIngest_IngestionFailureCarriesKind(t *testing.T) {
	s := newTestServer(t, &fakeStore{upsertErr: vectorstore.ErrIngestionFailed}, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/documents", `{"documents":[{"id":"d1"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"ingestion_failed"`)
}

func TestQuery_InternalErrorHidesDetail(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{err: errors.New("pq: connection refused")}, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/tenants/acme/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestDeleteTenant_InvalidatesCache(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeInvalidator{}
	s := newTestServer(t, store, &fakeQueries{}, cache)

	rec := doJSON(s, http.MethodDelete, "/api/v1/tenants/acme", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"acme"}, store.deleted)
	assert.Equal(t, []string{"acme"}, cache.dropped)
}

func TestDeleteTenant_StoreErrorSkipsCacheInvalidation(t *testing.T) {
	cache := &fakeInvalidator{}
	s := newTestServer(t, &fakeStore{deleteErr: errors.New("disk gone")}, &fakeQueries{}, cache)

	rec := doJSON(s, http.MethodDelete, "/api/v1/tenants/acme", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, cache.dropped)
}

func TestDeleteDocument(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodDelete, "/api/v1/tenants/acme/documents/faq-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "acme", store.lastTenant)
	assert.Equal(t, "faq-1", store.lastDocID)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, &fakeQueries{}, nil)

	rec := doJSON(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
