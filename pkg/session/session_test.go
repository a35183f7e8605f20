package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
)

func newSession() *Session {
	return New("sess-1", "stu-1", "q-1", "Solve x^2 = 4", "x = ±2", []string{"square_root", "negative_root"})
}

func TestTurnNumbersStrictlyIncreasing(t *testing.T) {
	s := newSession()

	for i := 1; i <= 5; i++ {
		speaker := SpeakerStudent
		if i%2 == 0 {
			speaker = SpeakerTutor
		}
		turn, err := s.AppendTurn(speaker, "content", fsm.StateListening, nil)
		require.NoError(t, err)
		assert.Equal(t, i, turn.Number)
	}
	assert.Equal(t, 5, s.TurnCount())
	assert.Equal(t, 3, s.StudentTurnCount())
}

func TestTerminalRejectsTurns(t *testing.T) {
	s := newSession()

	_, err := s.AppendTurn(SpeakerStudent, "first", fsm.StateListening, nil)
	require.NoError(t, err)

	s.Finalize()
	assert.True(t, s.Terminal())

	_, err = s.AppendTurn(SpeakerStudent, "too late", fsm.StateListening, nil)
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, 1, s.TurnCount())
}

func TestFinalizeIdempotent(t *testing.T) {
	s := newSession()

	s.Finalize()
	first, _ := s.EndedAt()
	s.Finalize()
	second, _ := s.EndedAt()
	assert.Equal(t, first, second)
}

func TestCoverage(t *testing.T) {
	s := newSession()
	assert.Equal(t, 0.0, s.Coverage())

	s.MergeCovered([]string{"square_root"})
	assert.InDelta(t, 0.5, s.Coverage(), 1e-9)

	// Concepts outside the required set grow the covered set but not the
	// ratio.
	s.MergeCovered([]string{"factoring", ""})
	assert.InDelta(t, 0.5, s.Coverage(), 1e-9)
	assert.Equal(t, []string{"factoring", "square_root"}, s.CoveredConcepts())

	s.MergeCovered([]string{"negative_root"})
	assert.InDelta(t, 1.0, s.Coverage(), 1e-9)
}

func TestEmptyRequiredConceptsCoverageIsOne(t *testing.T) {
	s := New("sess-2", "stu-1", "q-2", "text", "", nil)
	assert.Equal(t, 1.0, s.Coverage())
	assert.Equal(t, "", s.FirstRequiredConcept())
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := newSession()

	require.NoError(t, store.CreateSession(ctx, s))
	assert.Error(t, store.CreateSession(ctx, s), "duplicate id must be rejected")

	turn, err := s.AppendTurn(SpeakerStudent, "I think x is 2", fsm.StateListening, &AudioFeatures{
		DurationSeconds: 4.5, WordCount: 5, PauseCount: 1, TotalPauseDuration: 0.5,
	})
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, s.ID, turn))

	require.NoError(t, store.AppendHint(ctx, hint.Record{SessionID: s.ID, Level: hint.LevelDirection, Concept: "square_root"}))

	s.Finalize()
	require.NoError(t, store.FinalizeSession(ctx, s, "IDLE", 0.5))

	require.NoError(t, store.WriteMetricsReport(ctx, &MetricsReport{
		ID: "r-1", SessionID: s.ID, WPM: 66.6, HintDependency: 0.9, ConceptCoverage: 0.5,
	}))

	stored, err := store.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "IDLE", stored.FinalState)
	assert.NotEmpty(t, stored.EndedAt)

	turns, err := store.ListConversation(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.NotNil(t, turns[0].Audio)
	assert.Equal(t, 5, turns[0].Audio.WordCount)

	ids, err := store.ListStudentSessions(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, ids)

	assert.Len(t, store.Hints(s.ID), 1)
	require.NotNil(t, store.Report(s.ID))
	assert.InDelta(t, 66.6, store.Report(s.ID).WPM, 1e-9)
}

func TestMemoryStoreLoadMissingSession(t *testing.T) {
	store := NewMemoryStore()
	stored, err := store.LoadSession(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, stored)
}
