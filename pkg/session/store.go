package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
)

// Store is the durable side of the session lifecycle. The in-memory
// Session stays authoritative while active; the store is write-through at
// the lifecycle points and read back for observability.
type Store interface {
	// CreateSession persists a new session row.
	CreateSession(ctx context.Context, s *Session) error

	// AppendTurn persists one conversation turn.
	AppendTurn(ctx context.Context, sessionID string, t Turn) error

	// FinalizeSession records the end instant, final state, and coverage.
	FinalizeSession(ctx context.Context, s *Session, finalState string, coverage float64) error

	// AppendHint persists one hint record (satisfies hint.Store).
	AppendHint(ctx context.Context, rec hint.Record) error

	// WriteMetricsReport persists the end-of-session report.
	WriteMetricsReport(ctx context.Context, report *MetricsReport) error

	// LoadSession reads a persisted session row, nil when absent.
	LoadSession(ctx context.Context, sessionID string) (*StoredSession, error)

	// ListConversation reads the persisted turn log in order.
	ListConversation(ctx context.Context, sessionID string) ([]Turn, error)

	// ListStudentSessions returns the student's session ids, newest first.
	ListStudentSessions(ctx context.Context, studentID string) ([]string, error)

	// Close releases resources.
	Close() error
}

// StoredSession is the read-side projection of a persisted session.
type StoredSession struct {
	ID         string
	StudentID  string
	QuestionID string
	StartedAt  string
	EndedAt    string
	FinalState string
	Coverage   float64
}

// MemoryStore keeps everything in process. It backs tests and
// storage-free deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*StoredSession
	turns    map[string][]Turn
	hints    map[string][]hint.Record
	reports  map[string]*MetricsReport

	// started orders sessions per student for ListStudentSessions.
	started map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*StoredSession),
		turns:    make(map[string][]Turn),
		hints:    make(map[string][]hint.Record),
		reports:  make(map[string]*MetricsReport),
		started:  make(map[string][]string),
	}
}

// CreateSession implements Store.
func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}

	m.sessions[s.ID] = &StoredSession{
		ID:         s.ID,
		StudentID:  s.StudentID,
		QuestionID: s.QuestionID,
		StartedAt:  s.StartedAt.Format(timeLayout),
	}
	m.started[s.StudentID] = append(m.started[s.StudentID], s.ID)
	return nil
}

// AppendTurn implements Store.
func (m *MemoryStore) AppendTurn(_ context.Context, sessionID string, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[sessionID] = append(m.turns[sessionID], t)
	return nil
}

// FinalizeSession implements Store.
func (m *MemoryStore) FinalizeSession(_ context.Context, s *Session, finalState string, coverage float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("session %s not found", s.ID)
	}

	if endedAt, ended := s.EndedAt(); ended {
		stored.EndedAt = endedAt.Format(timeLayout)
	}
	stored.FinalState = finalState
	stored.Coverage = coverage
	return nil
}

// AppendHint implements Store.
func (m *MemoryStore) AppendHint(_ context.Context, rec hint.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hints[rec.SessionID] = append(m.hints[rec.SessionID], rec)
	return nil
}

// WriteMetricsReport implements Store.
func (m *MemoryStore) WriteMetricsReport(_ context.Context, report *MetricsReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *report
	m.reports[report.SessionID] = &saved
	return nil
}

// LoadSession implements Store.
func (m *MemoryStore) LoadSession(_ context.Context, sessionID string) (*StoredSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := *stored
	return &out, nil
}

// ListConversation implements Store.
func (m *MemoryStore) ListConversation(_ context.Context, sessionID string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.turns[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// ListStudentSessions implements Store.
func (m *MemoryStore) ListStudentSessions(_ context.Context, studentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.started[studentID]
	out := make([]string, len(ids))
	// Newest first.
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out, nil
}

// Hints returns the persisted hint log for a session.
func (m *MemoryStore) Hints(sessionID string) []hint.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.hints[sessionID]
	out := make([]hint.Record, len(recs))
	copy(out, recs)
	return out
}

// Report returns the persisted metrics report for a session, nil when
// absent.
func (m *MemoryStore) Report(sessionID string) *MetricsReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.reports[sessionID]; ok {
		out := *r
		return &out
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

var _ Store = (*MemoryStore)(nil)
var _ hint.Store = (*MemoryStore)(nil)
