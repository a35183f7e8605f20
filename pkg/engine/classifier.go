package engine

import "strings"

// HintRequestClassifier decides whether an utterance is asking for help
// rather than offering reasoning.
type HintRequestClassifier interface {
	IsHintRequest(text string) bool
}

// KeywordClassifier matches against a fixed multilingual keyword list.
// Matching is substring-based and case-insensitive, which handles both
// space-delimited and CJK input.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier builds a classifier over the given keywords.
func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &KeywordClassifier{keywords: lowered}
}

// IsHintRequest implements HintRequestClassifier.
func (c *KeywordClassifier) IsHintRequest(text string) bool {
	lowered := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

var _ HintRequestClassifier = (*KeywordClassifier)(nil)
