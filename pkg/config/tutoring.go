package config

import "fmt"

// DefaultHintRequestKeywords is the multilingual keyword set used by the
// hint-request classifier. Substring match, case-insensitive for ASCII.
var DefaultHintRequestKeywords = []string{
	"hint",
	"give me a hint",
	"help me",
	"i'm stuck",
	"im stuck",
	"i am stuck",
	"don't know how",
	"dont know how",
	"提示",
	"给我提示",
	"给点提示",
	"不会做",
	"不知道怎么",
	"怎么做",
	"卡住了",
	"帮帮我",
}

// TutoringConfig carries the dialog engine thresholds and bounds.
type TutoringConfig struct {
	// SilenceThresholdSeconds triggers a hint when the student is quiet for
	// at least this long while the tutor is listening.
	SilenceThresholdSeconds float64 `yaml:"silence_threshold_seconds,omitempty" json:"silence_threshold_seconds,omitempty" jsonschema:"default=5"`

	// CoverageThreshold is the concept-coverage ratio that triggers
	// consolidation. Must be in (0, 1].
	CoverageThreshold float64 `yaml:"coverage_threshold,omitempty" json:"coverage_threshold,omitempty" jsonschema:"minimum=0,maximum=1,default=0.9"`

	// HintWeights maps hint level to its dependency weight.
	HintWeights map[int]float64 `yaml:"hint_weights,omitempty" json:"hint_weights,omitempty"`

	// HintRequestKeywords override the default multilingual keyword set.
	HintRequestKeywords []string `yaml:"hint_request_keywords,omitempty" json:"hint_request_keywords,omitempty"`

	// RetrievalMaxResults bounds documents fetched per turn.
	RetrievalMaxResults int `yaml:"retrieval_max_results,omitempty" json:"retrieval_max_results,omitempty" jsonschema:"default=5"`

	// RetrievalMinSimilarity excludes documents below this score.
	RetrievalMinSimilarity float64 `yaml:"retrieval_min_similarity,omitempty" json:"retrieval_min_similarity,omitempty" jsonschema:"minimum=0,maximum=1,default=0.3"`

	// RetrievalTimeoutSeconds is the embedding+store budget per retrieval.
	RetrievalTimeoutSeconds int `yaml:"retrieval_timeout_seconds,omitempty" json:"retrieval_timeout_seconds,omitempty" jsonschema:"default=10"`

	// PromptHistoryTurns bounds conversation history injected into prompts.
	PromptHistoryTurns int `yaml:"prompt_history_turns,omitempty" json:"prompt_history_turns,omitempty" jsonschema:"default=5"`

	// PromptMaxRetrievedDocs bounds retrieved documents injected into prompts.
	PromptMaxRetrievedDocs int `yaml:"prompt_max_retrieved_docs,omitempty" json:"prompt_max_retrieved_docs,omitempty" jsonschema:"default=5"`
}

func (c *TutoringConfig) SetDefaults() {
	if c.SilenceThresholdSeconds == 0 {
		c.SilenceThresholdSeconds = 5.0
	}
	if c.CoverageThreshold == 0 {
		c.CoverageThreshold = 0.9
	}
	if c.HintWeights == nil {
		c.HintWeights = map[int]float64{1: 0.2, 2: 0.5, 3: 1.0}
	}
	if c.HintRequestKeywords == nil {
		c.HintRequestKeywords = DefaultHintRequestKeywords
	}
	if c.RetrievalMaxResults == 0 {
		c.RetrievalMaxResults = 5
	}
	if c.RetrievalMinSimilarity == 0 {
		c.RetrievalMinSimilarity = 0.3
	}
	if c.RetrievalTimeoutSeconds == 0 {
		c.RetrievalTimeoutSeconds = 10
	}
	if c.PromptHistoryTurns == 0 {
		c.PromptHistoryTurns = 5
	}
	if c.PromptMaxRetrievedDocs == 0 {
		c.PromptMaxRetrievedDocs = 5
	}
}

func (c *TutoringConfig) Validate() error {
	if c.SilenceThresholdSeconds < 0 {
		return fmt.Errorf("silence_threshold_seconds must be non-negative")
	}
	if c.CoverageThreshold <= 0 || c.CoverageThreshold > 1 {
		return fmt.Errorf("coverage_threshold must be in (0, 1]")
	}
	if c.RetrievalMinSimilarity < 0 || c.RetrievalMinSimilarity > 1 {
		return fmt.Errorf("retrieval_min_similarity must be in [0, 1]")
	}
	for level := range c.HintWeights {
		if level < 1 || level > 3 {
			return fmt.Errorf("hint_weights: invalid level %d (valid: 1-3)", level)
		}
	}
	return nil
}
