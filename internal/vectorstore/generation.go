package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
)

// generation is one immutable snapshot of a tenant's coupled artifacts:
// the vector index, the row↔id map, and the document registry. Readers
// hold a generation pointer and never see a partially mutated one.
type generation struct {
	index *flatIndex

	// rowIDs maps dense row -> document id.
	rowIDs []string
	// rows maps document id -> dense row.
	rows map[string]int

	// docs is the registry keyed by id; order preserves registry
	// insertion order for deterministic rebuilds.
	docs  map[string]document.Document
	order []string
}

func newEmptyGeneration() *generation {
	return &generation{
		index: newFlatIndex(),
		rows:  make(map[string]int),
		docs:  make(map[string]document.Document),
	}
}

// size returns the registry size.
func (g *generation) size() int {
	return len(g.order)
}

// hasAnyID reports whether any of the documents' ids already exist in the
// registry.
func (g *generation) hasAnyID(docs []document.Document) bool {
	for _, d := range docs {
		if _, ok := g.rows[d.ID]; ok {
			return true
		}
	}
	return false
}

// appended returns a new generation extending g with the documents and
// their vectors at the next free rows. g is not mutated; callers must
// have verified that no id collides.
func (g *generation) appended(docs []document.Document, vectors [][]float32) (*generation, error) {
	next := &generation{
		index:  g.index.clone(),
		rowIDs: append(make([]string, 0, len(g.rowIDs)+len(docs)), g.rowIDs...),
		rows:   make(map[string]int, len(g.rows)+len(docs)),
		docs:   make(map[string]document.Document, len(g.docs)+len(docs)),
		order:  append(make([]string, 0, len(g.order)+len(docs)), g.order...),
	}
	for id, row := range g.rows {
		next.rows[id] = row
	}
	for id, doc := range g.docs {
		next.docs[id] = doc
	}

	if err := next.index.add(vectors...); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		row := len(next.rowIDs)
		next.rowIDs = append(next.rowIDs, doc.ID)
		next.rows[doc.ID] = row
		next.docs[doc.ID] = doc
		next.order = append(next.order, doc.ID)
	}

	return next, next.validate()
}

// rebuilt constructs a fresh generation from documents in the given order
// with one vector per document.
func rebuilt(docs []document.Document, vectors [][]float32) (*generation, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("%w: %d documents, %d vectors", ErrCorruptArtifacts, len(docs), len(vectors))
	}

	next := newEmptyGeneration()
	if err := next.index.add(vectors...); err != nil {
		return nil, err
	}
	for i, doc := range docs {
		next.rowIDs = append(next.rowIDs, doc.ID)
		next.rows[doc.ID] = i
		next.docs[doc.ID] = doc
		next.order = append(next.order, doc.ID)
	}

	return next, next.validate()
}

// mergedRegistry returns the registry documents after merging incoming
// documents: existing order preserved with overwrite on id match, new ids
// appended in incoming order.
func (g *generation) mergedRegistry(incoming []document.Document) []document.Document {
	byID := make(map[string]document.Document, len(g.docs)+len(incoming))
	for id, doc := range g.docs {
		byID[id] = doc
	}
	order := append(make([]string, 0, len(g.order)+len(incoming)), g.order...)
	for _, doc := range incoming {
		if _, ok := byID[doc.ID]; !ok {
			order = append(order, doc.ID)
		}
		byID[doc.ID] = doc
	}

	merged := make([]document.Document, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	return merged
}

// registryDocs returns the registry documents in insertion order.
func (g *generation) registryDocs() []document.Document {
	docs := make([]document.Document, 0, len(g.order))
	for _, id := range g.order {
		docs = append(docs, g.docs[id])
	}
	return docs
}

// validate checks that the three coupled artifacts are mutually
// consistent: index row count equals registry size and the row↔id map is
// a strict bijection.
func (g *generation) validate() error {
	n := g.index.rows()
	if len(g.rowIDs) != n || len(g.rows) != n || len(g.docs) != n || len(g.order) != n {
		return fmt.Errorf("%w: index=%d rowIDs=%d rows=%d docs=%d order=%d",
			ErrCorruptArtifacts, n, len(g.rowIDs), len(g.rows), len(g.docs), len(g.order))
	}
	for row, id := range g.rowIDs {
		mapped, ok := g.rows[id]
		if !ok || mapped != row {
			return fmt.Errorf("%w: row %d and id %q disagree", ErrCorruptArtifacts, row, id)
		}
		if _, ok := g.docs[id]; !ok {
			return fmt.Errorf("%w: id %q has a row but no registry entry", ErrCorruptArtifacts, id)
		}
	}
	return nil
}
