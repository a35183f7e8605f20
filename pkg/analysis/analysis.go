// Package analysis defines the LLM-produced assessment of a student's
// reasoning and a tolerant parser for it. The analysis call asks the model
// for JSON; models being models, the parser accepts fenced blocks, leading
// prose, and missing fields, and degrades to a conservative result rather
// than failing the turn.
package analysis

import (
	"encoding/json"
	"strings"
)

// Error types a diagnosed mistake can be classified as.
const (
	ErrorTypeCalculation = "calculation"
	ErrorTypeConcept     = "concept"
	ErrorTypeCareless    = "careless"
)

// Result is the JSON-shaped assessment of one student input.
type Result struct {
	// LogicComplete is set when the student's reasoning chain is finished.
	LogicComplete bool `json:"logic_complete"`

	// LogicGap is set when a step is missing but nothing stated is wrong.
	LogicGap bool `json:"logic_gap"`

	// LogicError is set when a stated step is wrong. Takes priority over
	// LogicGap when both are set.
	LogicError bool `json:"logic_error"`

	// ErrorType classifies a LogicError: calculation, concept, or careless.
	ErrorType string `json:"error_type,omitempty"`

	// CoveredConcepts the student visibly engaged with in this input.
	CoveredConcepts []string `json:"covered_concepts,omitempty"`

	// MissingConcepts still required for a complete solution.
	MissingConcepts []string `json:"missing_concepts,omitempty"`

	// Feedback is a short diagnostic remark. Must never contain the final
	// answer.
	Feedback string `json:"feedback,omitempty"`

	// ContinueListening marks a synthetic result used to move the dialog
	// back to listening after a hint. Never produced by the model.
	ContinueListening bool `json:"continue_listening,omitempty"`
}

// Conservative returns the degraded result used when the model's output
// could not be parsed: no flags, no concepts, the raw text as feedback.
func Conservative(raw string) *Result {
	return &Result{
		LogicComplete: false,
		Feedback:      strings.TrimSpace(raw),
	}
}

// Parse extracts a Result from raw model output. It strips markdown fences
// and tolerates prose around the JSON object. On any failure it returns
// Conservative(raw) and ok=false; the pipeline continues either way.
func Parse(raw string) (*Result, bool) {
	candidate := extractJSON(raw)
	if candidate == "" {
		return Conservative(raw), false
	}

	var result Result
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return Conservative(raw), false
	}

	result.normalize()
	return &result, true
}

// normalize clamps fields to their closed sets.
func (r *Result) normalize() {
	switch r.ErrorType {
	case ErrorTypeCalculation, ErrorTypeConcept, ErrorTypeCareless, "":
	case "null", "none":
		r.ErrorType = ""
	default:
		r.ErrorType = ErrorTypeConcept
	}
	if !r.LogicError {
		r.ErrorType = ""
	}
}

// extractJSON returns the first balanced {...} block in raw, or "".
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Strip a single markdown code fence if present.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
