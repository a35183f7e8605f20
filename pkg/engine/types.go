// Package engine is the dialog core: it composes the FSM, the hint ladder,
// retrieval, prompt composition, and the LLM port into the per-turn
// pipeline. Its public methods never return an error for student-facing
// paths; failures degrade into valid responses.
package engine

import (
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
)

// StartRequest opens a tutoring session for one problem.
type StartRequest struct {
	QuestionID       string   `json:"question_id"`
	StudentID        string   `json:"student_id"`
	QuestionText     string   `json:"question_text"`
	StandardSolution string   `json:"standard_solution"`
	RequiredConcepts []string `json:"required_concepts"`
}

// StartResult is the session handle returned to the caller.
type StartResult struct {
	SessionID      string    `json:"session_id"`
	State          fsm.State `json:"fsm_state"`
	InitialMessage string    `json:"initial_message"`
}

// StudentInput is one utterance arriving from the API layer.
type StudentInput struct {
	SessionID string                 `json:"session_id"`
	Text      string                 `json:"text"`
	Audio     *session.AudioFeatures `json:"audio_features,omitempty"`
}

// ResponseType classifies the tutor's move.
type ResponseType string

const (
	ResponseProbe       ResponseType = "probe"
	ResponseHint        ResponseType = "hint"
	ResponseRepair      ResponseType = "repair"
	ResponseConsolidate ResponseType = "consolidate"
	ResponseAcknowledge ResponseType = "acknowledge"
)

// TutorResponse is the engine's answer to one student input.
type TutorResponse struct {
	Text string       `json:"text"`
	Type ResponseType `json:"response_type"`

	// HintLevel is set only when Type is hint.
	HintLevel hint.Level `json:"hint_level,omitempty"`

	RelatedConcepts   []string `json:"related_concepts"`
	SuggestedNextStep string   `json:"suggested_next_step,omitempty"`

	State fsm.State `json:"fsm_state"`

	// Degraded marks a fallback-generated response.
	Degraded bool `json:"degraded,omitempty"`
}

// SessionSummary is returned once, on end.
type SessionSummary struct {
	SessionID       string        `json:"session_id"`
	DurationSeconds float64       `json:"duration_seconds"`
	ConceptsCovered []string      `json:"concepts_covered"`
	ConceptCoverage float64       `json:"concept_coverage"`
	HintsUsed       []hint.Record `json:"hints_used"`
	TotalTurns      int           `json:"total_turns"`
	FinalState      fsm.State     `json:"final_state"`
}

// responseTypeFor maps the post-analysis state to the tutor's move.
func responseTypeFor(state fsm.State) ResponseType {
	switch state {
	case fsm.StateProbing:
		return ResponseProbe
	case fsm.StateHinting:
		return ResponseHint
	case fsm.StateRepair:
		return ResponseRepair
	case fsm.StateConsolidating:
		return ResponseConsolidate
	default:
		return ResponseAcknowledge
	}
}
