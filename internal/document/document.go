// Package document defines the tenant document model and its canonical
// rendering for embedding.
package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingID indicates a document without an ID.
var ErrMissingID = errors.New("document id is required")

// Kind tags the document shape. It is chosen once at ingestion and drives
// the canonical embedding-text rendering.
type Kind string

const (
	// KindFAQ marks question/answer shaped documents.
	KindFAQ Kind = "faq"
	// KindAttribute marks product-like documents described by attributes.
	KindAttribute Kind = "attribute"
)

// Document is a short tenant-scoped document. Immutable except via
// re-upsert under the same ID.
type Document struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind,omitempty"`
	Title      string            `json:"title,omitempty"`
	Question   string            `json:"question,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	URL        string            `json:"url,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// Validate checks required fields.
func (d *Document) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	return nil
}

// DetectKind returns the document's shape: FAQ if a question or answer is
// present, attribute otherwise.
func DetectKind(d Document) Kind {
	if d.Question != "" || d.Answer != "" {
		return KindFAQ
	}
	return KindAttribute
}

// EmbeddingText renders the canonical text used for embedding, dispatched
// on the document's kind.
func (d *Document) EmbeddingText() string {
	kind := d.Kind
	if kind == "" {
		kind = DetectKind(*d)
	}

	switch kind {
	case KindFAQ:
		return fmt.Sprintf("Q: %s\nA: %s\nTitle: %s\nURL: %s\nTags: %s",
			d.Question, d.Answer, d.Title, d.URL, strings.Join(d.Tags, ", "))
	default:
		return fmt.Sprintf("Title: %s\n%s\nURL: %s",
			d.Title, flattenAttributes(d.Attributes), d.URL)
	}
}

// flattenAttributes renders attributes as "k: v" pairs in sorted key order
// so the rendering is deterministic across map iterations.
func flattenAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, attrs[k]))
	}
	return strings.Join(parts, " ")
}
