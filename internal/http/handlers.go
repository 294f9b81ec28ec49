package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/answerer"
	"github.com/fyrsmithlabs/retrieverd/internal/document"
	"github.com/fyrsmithlabs/retrieverd/internal/tenant"
	"github.com/fyrsmithlabs/retrieverd/internal/vectorstore"
)

// IngestRequest is the request body for POST /api/v1/tenants/:tenant/documents.
// DatasetType optionally presets the kind ("faqs" or "products") for
// documents that do not carry one; otherwise the kind is detected per
// document from its fields.
type IngestRequest struct {
	DatasetType string              `json:"dataset_type,omitempty"`
	Documents   []document.Document `json:"documents"`
}

func datasetKind(datasetType string) document.Kind {
	switch datasetType {
	case "faqs", "faq":
		return document.KindFAQ
	case "products", "product":
		return document.KindAttribute
	default:
		return ""
	}
}

// IngestResponse is the response body for a successful ingestion.
type IngestResponse struct {
	Ingested int `json:"ingested"`
}

// ListDocumentsResponse is the response body for GET /api/v1/tenants/:tenant/documents.
type ListDocumentsResponse struct {
	Documents []document.Document `json:"documents"`
	Count     int                 `json:"count"`
}

// QueryRequest is the request body for POST /api/v1/tenants/:tenant/query.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// QueryResponse is the response body for a successful query.
type QueryResponse struct {
	Answer    string                     `json:"answer"`
	Strategy  string                     `json:"strategy"`
	Context   []vectorstore.SearchResult `json:"context,omitempty"`
	LatencyMS int64                      `json:"latency_ms"`
}

func (s *Server) handleIngest(c echo.Context) error {
	tenantID := c.Param("tenant")

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, errorBody("validation", "invalid request body"))
	}

	// Documents without an id get one here so the store can hold its
	// non-empty-id requirement. A dataset-level kind fills documents that
	// did not declare their own.
	kind := datasetKind(req.DatasetType)
	for i := range req.Documents {
		if req.Documents[i].ID == "" {
			req.Documents[i].ID = uuid.NewString()
		}
		if req.Documents[i].Kind == "" && kind != "" {
			req.Documents[i].Kind = kind
		}
	}

	count, err := s.store.Upsert(c.Request().Context(), tenantID, req.Documents)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, IngestResponse{Ingested: count})
}

func (s *Server) handleListDocuments(c echo.Context) error {
	docs, err := s.store.List(c.Request().Context(), c.Param("tenant"))
	if err != nil {
		return mapError(err)
	}
	if docs == nil {
		docs = []document.Document{}
	}
	return c.JSON(http.StatusOK, ListDocumentsResponse{Documents: docs, Count: len(docs)})
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	tenantID := c.Param("tenant")
	if err := s.store.DeleteDocument(c.Request().Context(), tenantID, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteTenant(c echo.Context) error {
	tenantID := c.Param("tenant")
	if err := s.store.DeleteTenant(c.Request().Context(), tenantID); err != nil {
		return mapError(err)
	}
	// Cached answers derive from deleted documents; drop them too.
	if s.cache != nil {
		s.cache.DeleteTenant(tenantID)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleQuery(c echo.Context) error {
	tenantID := c.Param("tenant")

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, errorBody("validation", "invalid request body"))
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody("validation", "query field is required"))
	}

	result, err := s.queries.Query(c.Request().Context(), tenantID, req.Query, req.TopK)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, QueryResponse{
		Answer:    result.Answer,
		Strategy:  result.Strategy,
		Context:   result.Context,
		LatencyMS: result.Latency.Milliseconds(),
	})
}

// errorBody is the machine-readable error payload: a stable kind for
// programmatic handling plus a human-readable detail.
func errorBody(kind, detail string) map[string]string {
	return map[string]string{"kind": kind, "detail": detail}
}

// mapError converts domain errors to HTTP status codes. Unrecognized
// errors become 500s with a generic detail so internals never leak.
func mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, vectorstore.ErrTenantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errorBody("tenant_not_found", "tenant not found"))
	case errors.Is(err, tenant.ErrInvalidTenantID),
		errors.Is(err, vectorstore.ErrEmptyDocuments),
		errors.Is(err, vectorstore.ErrInvalidDocument),
		errors.Is(err, document.ErrMissingID):
		return echo.NewHTTPError(http.StatusBadRequest, errorBody("validation", err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, errorBody("timeout", "request timed out"))
	case errors.Is(err, answerer.ErrGenerationFailed):
		return echo.NewHTTPError(http.StatusBadGateway, errorBody("generation_failed", "answer generation failed")).SetInternal(err)
	case errors.Is(err, vectorstore.ErrIngestionFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, errorBody("ingestion_failed", "document ingestion failed")).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, errorBody("internal", "internal error")).SetInternal(err)
	}
}
