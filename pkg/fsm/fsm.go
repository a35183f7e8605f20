// Package fsm implements the dialog state controller.
//
// The controller is a pure per-session object: it owns no session data, only
// the current state and an audit trail of accepted transitions. Applying an
// event either transitions or stays; unknown event/state pairs are silently
// ignored and the controller never fails.
package fsm

import (
	"sync"
	"time"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/analysis"
)

// State is the tutor's dialog posture.
type State string

const (
	StateIdle          State = "IDLE"
	StateListening     State = "LISTENING"
	StateAnalyzing     State = "ANALYZING"
	StateProbing       State = "PROBING"
	StateHinting       State = "HINTING"
	StateRepair        State = "REPAIR"
	StateConsolidating State = "CONSOLIDATING"
)

// EventType identifies a dialog event.
type EventType string

const (
	EventSessionStart    EventType = "SESSION_START"
	EventSessionEnd      EventType = "SESSION_END"
	EventStudentInput    EventType = "STUDENT_INPUT"
	EventSilenceDetected EventType = "SILENCE_DETECTED"
	EventHintRequest     EventType = "HINT_REQUEST"
	EventAnalysisResult  EventType = "ANALYSIS_RESULT"
)

// Event carries an event type and its payload. SilenceDuration is only
// meaningful for SILENCE_DETECTED; Analysis and Coverage only for
// ANALYSIS_RESULT.
type Event struct {
	Type            EventType
	SilenceDuration float64
	Analysis        *analysis.Result
	Coverage        float64
}

// Transition is one accepted state change, recorded for observability.
type Transition struct {
	From      State
	To        State
	Event     EventType
	Synthetic bool
	At        time.Time
}

// Config holds the controller thresholds.
type Config struct {
	// SilenceThreshold in seconds; silence at least this long while
	// listening triggers hinting.
	SilenceThreshold float64

	// CoverageThreshold in (0,1]; coverage at or above it with a clean
	// analysis triggers consolidation.
	CoverageThreshold float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:  5.0,
		CoverageThreshold: 0.9,
	}
}

// Controller applies the transition table. Safe for concurrent use, though
// in practice each session serializes access through its own lock.
type Controller struct {
	cfg     Config
	mu      sync.RWMutex
	current State
	history []Transition
}

// New creates a controller in IDLE.
func New(cfg Config) *Controller {
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultConfig().SilenceThreshold
	}
	if cfg.CoverageThreshold <= 0 || cfg.CoverageThreshold > 1 {
		cfg.CoverageThreshold = DefaultConfig().CoverageThreshold
	}
	return &Controller{
		cfg:     cfg,
		current: StateIdle,
	}
}

// Current returns the current state.
func (c *Controller) Current() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// History returns a copy of the audit trail.
func (c *Controller) History() []Transition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Transition, len(c.history))
	copy(out, c.history)
	return out
}

// Reset returns the controller to IDLE without recording a transition and
// clears the audit trail.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = StateIdle
	c.history = nil
}

// Apply feeds one event through the transition table and returns the
// resulting state. First matching rule wins; unmatched pairs are no-ops.
func (c *Controller) Apply(event Event) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, ok := c.next(event)
	if !ok {
		return c.current
	}

	c.history = append(c.history, Transition{
		From:      c.current,
		To:        next,
		Event:     event.Type,
		Synthetic: event.Analysis != nil && event.Analysis.ContinueListening,
		At:        time.Now(),
	})
	c.current = next
	return c.current
}

func (c *Controller) next(event Event) (State, bool) {
	// SESSION_END overrides everything.
	if event.Type == EventSessionEnd {
		return StateIdle, true
	}

	switch c.current {
	case StateIdle:
		if event.Type == EventSessionStart {
			return StateListening, true
		}

	case StateListening:
		switch event.Type {
		case EventStudentInput:
			return StateAnalyzing, true
		case EventSilenceDetected:
			if event.SilenceDuration >= c.cfg.SilenceThreshold {
				return StateHinting, true
			}
		case EventHintRequest:
			return StateHinting, true
		}

	case StateAnalyzing:
		switch event.Type {
		case EventHintRequest:
			return StateHinting, true
		case EventAnalysisResult:
			return c.resolveAnalysis(event), true
		}

	case StateProbing, StateHinting, StateRepair:
		if event.Type == EventAnalysisResult {
			return StateListening, true
		}

	case StateConsolidating:
		if event.Type == EventAnalysisResult {
			return StateIdle, true
		}
	}

	return c.current, false
}

// resolveAnalysis applies the strict ANALYSIS_RESULT priority:
// logic_error > logic_gap > coverage_met > default.
func (c *Controller) resolveAnalysis(event Event) State {
	result := event.Analysis
	if result == nil {
		return StateListening
	}

	switch {
	case result.LogicError:
		return StateRepair
	case result.LogicGap:
		return StateProbing
	case event.Coverage >= c.cfg.CoverageThreshold:
		return StateConsolidating
	default:
		return StateListening
	}
}
