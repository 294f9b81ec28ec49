package answerer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/retrieverd/internal/vectorstore"
)

// systemPrompt keeps the model grounded in retrieved snippets. The exact
// "I don't know." reply is part of the product contract and is matched by
// downstream consumers.
const systemPrompt = "You are a helpful SaaS support assistant.\n" +
	"You must ONLY answer using the provided context snippets.\n" +
	"If the answer is not in the context, reply exactly: \"I don't know.\".\n" +
	"Always finish with a 'Sources:' list showing titles or URLs."

const emptyContextBlock = "No relevant context retrieved."

// buildUserPrompt assembles the user turn: the question followed by the
// retrieved context block.
func buildUserPrompt(query string, results []vectorstore.SearchResult) string {
	return fmt.Sprintf("Question: %s\n\nContext:\n%s", query, formatContext(results))
}

// formatContext renders retrieval hits into a readable context block, one
// snippet per hit, highest score first (results arrive already sorted).
func formatContext(results []vectorstore.SearchResult) string {
	if len(results) == 0 {
		return emptyContextBlock
	}

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		if title == "" {
			title = r.ID
		}
		if title == "" {
			title = fmt.Sprintf("Doc%d", i+1)
		}

		var snippet string
		switch {
		case r.Question != "" || r.Answer != "":
			snippet = fmt.Sprintf("Q: %s\nA: %s", r.Question, r.Answer)
		case len(r.Attributes) > 0:
			snippet = flattenAttributes(r.Attributes)
		}

		blocks = append(blocks, fmt.Sprintf("[%s] (score=%.3f)\n%s", title, r.Score, snippet))
	}
	return strings.Join(blocks, "\n\n")
}

// flattenAttributes renders attributes as "k: v; k: v" in sorted key order
// so the same document always produces the same snippet.
func flattenAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, attrs[k]))
	}
	return strings.Join(parts, "; ")
}
