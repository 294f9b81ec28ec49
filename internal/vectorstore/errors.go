// Package vectorstore implements the per-tenant vector store: ingestion,
// persistence, and exact top-k cosine retrieval.
package vectorstore

import "errors"

// Sentinel errors for vector store operations.
var (
	// ErrTenantNotFound is returned when no persisted store exists for a tenant.
	ErrTenantNotFound = errors.New("no vector store found for tenant")

	// ErrIngestionFailed indicates an embedding or storage I/O failure
	// during upsert. No partially committed state is visible to readers.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrInvalidDocument indicates a document that failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrDimensionMismatch indicates an embedding whose dimension does not
	// match the existing index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCorruptArtifacts indicates persisted artifacts that are mutually
	// inconsistent (index rows vs registry entries vs row map).
	ErrCorruptArtifacts = errors.New("persisted artifacts are inconsistent")
)
