// Package session holds the per-student dialog state: the turn log, the
// concept coverage set, and the terminal flag. A Session exclusively owns
// its turns; the engine serializes access per session, but the Session also
// guards itself so observability reads stay safe.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
)

// ErrTerminal rejects writes to an ended session.
var ErrTerminal = errors.New("session is terminal")

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerStudent Speaker = "student"
	SpeakerTutor   Speaker = "tutor"
)

// AudioFeatures are the speech statistics attached to a student turn.
// Optional: text-only input leaves them nil and the derived metrics fall
// back to neutral values.
type AudioFeatures struct {
	// DurationSeconds is the spoken duration.
	DurationSeconds float64 `json:"duration"`

	// WordCount as counted by the recognizer.
	WordCount int `json:"word_count"`

	// PauseCount is the number of detected pauses.
	PauseCount int `json:"pause_count"`

	// TotalPauseDuration is the summed pause time in seconds.
	TotalPauseDuration float64 `json:"total_pause_duration"`
}

// Turn is one utterance in the conversation log.
type Turn struct {
	// Number starts at 1 and is strictly increasing within a session.
	Number int `json:"turn_number"`

	Speaker Speaker `json:"speaker"`
	Content string  `json:"content"`

	// State is the FSM state at emission.
	State fsm.State `json:"fsm_state"`

	Timestamp time.Time `json:"timestamp"`

	// Audio is present only on student turns that came from speech.
	Audio *AudioFeatures `json:"audio,omitempty"`
}

// Session is the unit of tutoring: one student, one problem.
type Session struct {
	ID               string
	StudentID        string
	QuestionID       string
	QuestionText     string
	StandardSolution string
	StartedAt        time.Time

	mu       sync.Mutex
	required []string
	covered  map[string]bool
	turns    []Turn
	endedAt  time.Time
}

// New creates an active session. The required-concepts set is frozen here.
func New(id, studentID, questionID, questionText, standardSolution string, requiredConcepts []string) *Session {
	required := make([]string, len(requiredConcepts))
	copy(required, requiredConcepts)

	return &Session{
		ID:               id,
		StudentID:        studentID,
		QuestionID:       questionID,
		QuestionText:     questionText,
		StandardSolution: standardSolution,
		StartedAt:        time.Now(),
		required:         required,
		covered:          make(map[string]bool),
	}
}

// RequiredConcepts returns a copy of the frozen concept set.
func (s *Session) RequiredConcepts() []string {
	out := make([]string, len(s.required))
	copy(out, s.required)
	return out
}

// FirstRequiredConcept returns the concept the hint ladder starts on, or ""
// when the session has no required concepts.
func (s *Session) FirstRequiredConcept() string {
	if len(s.required) == 0 {
		return ""
	}
	return s.required[0]
}

// AppendTurn records an utterance and returns the assigned turn. Writes to
// a terminal session are rejected with ErrTerminal.
func (s *Session) AppendTurn(speaker Speaker, content string, state fsm.State, audio *AudioFeatures) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.endedAt.IsZero() {
		return Turn{}, ErrTerminal
	}

	turn := Turn{
		Number:    len(s.turns) + 1,
		Speaker:   speaker,
		Content:   content,
		State:     state,
		Timestamp: time.Now(),
		Audio:     audio,
	}
	s.turns = append(s.turns, turn)
	return turn, nil
}

// MergeCovered adds concepts to the coverage set. Growth is monotonic;
// concepts are never removed.
func (s *Session) MergeCovered(concepts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range concepts {
		if c != "" {
			s.covered[c] = true
		}
	}
}

// Coverage returns |covered ∩ required| / |required|. An empty required
// set means there is nothing left to teach, so coverage is 1.0.
func (s *Session) Coverage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.required) == 0 {
		return 1.0
	}

	hit := 0
	for _, c := range s.required {
		if s.covered[c] {
			hit++
		}
	}
	return float64(hit) / float64(len(s.required))
}

// CoveredConcepts returns the coverage set, sorted for determinism.
func (s *Session) CoveredConcepts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.covered))
	for c := range s.covered {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Turns returns a copy of the conversation log.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// TurnCount returns the number of recorded turns.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// StudentTurnCount counts turns spoken by the student.
func (s *Session) StudentTurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.turns {
		if t.Speaker == SpeakerStudent {
			n++
		}
	}
	return n
}

// Finalize marks the session terminal. Idempotent; only the first call
// sets the end instant.
func (s *Session) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.endedAt.IsZero() {
		s.endedAt = time.Now()
	}
}

// Terminal reports whether the session has ended.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.endedAt.IsZero()
}

// EndedAt returns the end instant and whether the session has ended.
func (s *Session) EndedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt, !s.endedAt.IsZero()
}

// Duration is wall time from start to end, or to now while active.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.endedAt.IsZero() {
		return s.endedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}
