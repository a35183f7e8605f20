// Package retrieval grounds tutor responses in the indexed teaching corpus.
// It owns the embedder and the vector store: callers hand it text, it hands
// back scored corpus documents. Retrieval always runs before prompt
// composition so the tutor never improvises pedagogy the corpus can answer.
package retrieval

import "strings"

// Category partitions the corpus by pedagogical role.
type Category string

const (
	CategoryQuestion      Category = "question"
	CategorySolution      Category = "solution"
	CategoryMisconception Category = "misconception"
	CategoryConcept       Category = "concept"
	CategoryHint          Category = "hint"
)

// Document is one corpus entry.
type Document struct {
	// ID uniquely identifies the document in its collection.
	ID string `json:"id"`

	// Content is the indexed text.
	Content string `json:"content"`

	// Category is the document's pedagogical role.
	Category Category `json:"category"`

	// QuestionID ties the document to a problem, when applicable.
	QuestionID string `json:"question_id,omitempty"`

	// KnowledgeNodes are the concept tags attached to the document.
	KnowledgeNodes []string `json:"knowledge_nodes,omitempty"`

	// Metadata carries any additional string fields.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ScoredDocument pairs a document with its similarity score.
type ScoredDocument struct {
	Document
	Score float32 `json:"score"`
}

// SearchContext narrows a search beyond plain similarity.
type SearchContext struct {
	// QuestionID restricts results to one problem (exact match).
	QuestionID string

	// KnowledgeNodes keeps documents sharing at least one concept tag.
	KnowledgeNodes []string

	// Category restricts results to one pedagogical role.
	Category Category

	// MaxResults overrides the configured bound when positive.
	MaxResults int

	// MinSimilarity overrides the configured floor when positive.
	MinSimilarity float32
}

// Result is a completed search.
type Result struct {
	Documents []ScoredDocument

	// TotalFound counts matches before MaxResults truncation.
	TotalFound int
}

// Metadata keys used in the vector store.
const (
	metaContent        = "content"
	metaCategory       = "category"
	metaQuestionID     = "question_id"
	metaKnowledgeNodes = "knowledge_nodes"
)

// joinNodes flattens concept tags for storage. Vector store metadata is
// flat strings, so tags are comma-joined.
func joinNodes(nodes []string) string {
	return strings.Join(nodes, ",")
}

func splitNodes(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sharesNode reports whether doc carries at least one of the wanted tags.
func sharesNode(docNodes, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, n := range docNodes {
			if n == w {
				return true
			}
		}
	}
	return false
}
