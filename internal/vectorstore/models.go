package vectorstore

import (
	"sort"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
)

// SearchResult is a single retrieval hit.
//
// The full document is carried alongside the flattened fields so downstream
// prompt assembly does not need a second registry lookup.
type SearchResult struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	URL        string            `json:"url,omitempty"`
	Score      float32           `json:"score"`
	Tags       []string          `json:"tags,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Question   string            `json:"question,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Document   document.Document `json:"document"`
}

func newSearchResult(doc document.Document, score float32) SearchResult {
	return SearchResult{
		ID:         doc.ID,
		Title:      doc.Title,
		URL:        doc.URL,
		Score:      score,
		Tags:       doc.Tags,
		Attributes: doc.Attributes,
		Question:   doc.Question,
		Answer:     doc.Answer,
		Document:   doc,
	}
}

// sortResults orders results by descending score, with document id as the
// deterministic tie-break for equal scores.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
