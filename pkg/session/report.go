package session

import "time"

// MetricsReport is the per-session learning telemetry, computed once at
// end-of-session. All ratio fields are bounded to [0,1]; recomputation from
// the same turn and hint logs is deterministic.
type MetricsReport struct {
	// ID is derived deterministically from the session id.
	ID string `json:"id"`

	SessionID string `json:"session_id"`

	// WPM is words per spoken minute across student turns with audio.
	WPM float64 `json:"wpm"`

	// PauseRate is total pause time over total spoken time, clamped.
	PauseRate float64 `json:"pause_rate"`

	// HintDependency scores independence from hints (1.0 = no hints).
	HintDependency float64 `json:"hint_dependency"`

	// ConceptCoverage is the covered/required ratio at session end.
	ConceptCoverage float64 `json:"concept_coverage"`

	// FocusDurationSeconds is supplied by the attention monitor, 0 when
	// absent.
	FocusDurationSeconds float64 `json:"focus_duration_seconds"`

	ComputedAt time.Time `json:"computed_at"`
}
