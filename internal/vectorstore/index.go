package vectorstore

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/retrieverd/internal/embeddings"
)

// flatIndex is a dense exact inner-product index. All stored vectors are
// unit-normalized, so the inner product is the cosine similarity.
type flatIndex struct {
	dim     int
	vectors [][]float32
}

func newFlatIndex() *flatIndex {
	return &flatIndex{}
}

// rows returns the number of stored vectors.
func (ix *flatIndex) rows() int {
	return len(ix.vectors)
}

// add appends vectors as new rows. The first added vector fixes the
// index dimension.
func (ix *flatIndex) add(vectors ...[]float32) error {
	for _, v := range vectors {
		if ix.dim == 0 {
			ix.dim = len(v)
		}
		if len(v) != ix.dim {
			return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(v), ix.dim)
		}
		ix.vectors = append(ix.vectors, v)
	}
	return nil
}

// clone returns a copy sharing row vectors but not the row slice, so the
// copy can be extended without mutating the original.
func (ix *flatIndex) clone() *flatIndex {
	vectors := make([][]float32, len(ix.vectors), len(ix.vectors)+8)
	copy(vectors, ix.vectors)
	return &flatIndex{dim: ix.dim, vectors: vectors}
}

// rowScore pairs a row index with its similarity score.
type rowScore struct {
	row   int
	score float32
}

// search scans all rows and returns up to k rows ordered by descending
// score. Fewer than k rows are returned when the index is smaller than k.
func (ix *flatIndex) search(query []float32, k int) []rowScore {
	scored := make([]rowScore, 0, len(ix.vectors))
	for row, v := range ix.vectors {
		scored = append(scored, rowScore{row: row, score: embeddings.Dot(query, v)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].row < scored[j].row
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
