package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
)

func sessionWithTurns(t *testing.T) *session.Session {
	t.Helper()
	s := session.New("sess-m", "stu-1", "q-1", "question", "solution", []string{"a", "b"})

	_, err := s.AppendTurn(session.SpeakerStudent, "first attempt here", fsm.StateListening, &session.AudioFeatures{
		DurationSeconds: 30, WordCount: 40, PauseCount: 2, TotalPauseDuration: 6,
	})
	require.NoError(t, err)
	_, err = s.AppendTurn(session.SpeakerTutor, "keep going", fsm.StateProbing, nil)
	require.NoError(t, err)
	_, err = s.AppendTurn(session.SpeakerStudent, "second attempt", fsm.StateListening, &session.AudioFeatures{
		DurationSeconds: 30, WordCount: 20, PauseCount: 1, TotalPauseDuration: 3,
	})
	require.NoError(t, err)

	s.MergeCovered([]string{"a"})
	return s
}

func TestComputeWPMAndPauseRate(t *testing.T) {
	s := sessionWithTurns(t)
	report := New(nil).Compute(s, nil, 120)

	// 60 words over 60 seconds of speech.
	assert.InDelta(t, 60.0, report.WPM, 1e-9)
	// 9 seconds of pause over 60 seconds.
	assert.InDelta(t, 0.15, report.PauseRate, 1e-9)
	assert.InDelta(t, 0.5, report.ConceptCoverage, 1e-9)
	assert.Equal(t, 120.0, report.FocusDurationSeconds)
	assert.Equal(t, "sess-m", report.SessionID)
}

func TestComputeNoAudioFallsBackToWordFields(t *testing.T) {
	s := session.New("sess-t", "stu-1", "q-1", "q", "", nil)
	_, err := s.AppendTurn(session.SpeakerStudent, "one two three", fsm.StateListening, nil)
	require.NoError(t, err)

	report := New(nil).Compute(s, nil, 0)
	// No spoken duration means WPM and pause rate report neutral zero.
	assert.Equal(t, 0.0, report.WPM)
	assert.Equal(t, 0.0, report.PauseRate)
}

func TestComputeExcludesSilenceTurns(t *testing.T) {
	s := session.New("sess-s", "stu-1", "q-1", "q", "", nil)
	_, err := s.AppendTurn(session.SpeakerStudent, "(silence)", fsm.StateListening, nil)
	require.NoError(t, err)
	_, err = s.AppendTurn(session.SpeakerStudent, "real words", fsm.StateListening, &session.AudioFeatures{
		DurationSeconds: 60, WordCount: 30,
	})
	require.NoError(t, err)

	report := New(nil).Compute(s, nil, 0)
	assert.InDelta(t, 30.0, report.WPM, 1e-9)
}

func TestComputeHintDependency(t *testing.T) {
	s := sessionWithTurns(t) // 2 student turns

	hints := []hint.Record{
		{SessionID: s.ID, Level: hint.LevelDirection},
		{SessionID: s.ID, Level: hint.LevelKeyStep},
	}
	report := New(nil).Compute(s, hints, 0)

	// 1 - (0.2+0.5)/2 = 0.65
	assert.InDelta(t, 0.65, report.HintDependency, 1e-9)
}

func TestDependencyAndPauseRateBounds(t *testing.T) {
	s := sessionWithTurns(t)

	heavy := make([]hint.Record, 10)
	for i := range heavy {
		heavy[i] = hint.Record{Level: hint.LevelSkeleton}
	}
	report := New(nil).Compute(s, heavy, 0)
	assert.GreaterOrEqual(t, report.HintDependency, 0.0)
	assert.LessOrEqual(t, report.HintDependency, 1.0)
	assert.Equal(t, 0.0, report.HintDependency)

	// Pauses longer than speech clamp to 1.
	p := session.New("sess-p", "stu-1", "q-1", "q", "", nil)
	_, err := p.AppendTurn(session.SpeakerStudent, "uh", fsm.StateListening, &session.AudioFeatures{
		DurationSeconds: 10, WordCount: 1, TotalPauseDuration: 25,
	})
	require.NoError(t, err)
	report = New(nil).Compute(p, nil, 0)
	assert.Equal(t, 1.0, report.PauseRate)
}

func TestNoHintsMeansFullIndependence(t *testing.T) {
	s := sessionWithTurns(t)
	report := New(nil).Compute(s, nil, 0)
	assert.Equal(t, 1.0, report.HintDependency)
}

func TestRecomputeDeterministic(t *testing.T) {
	s := sessionWithTurns(t)
	hints := []hint.Record{{SessionID: s.ID, Level: hint.LevelDirection, Timestamp: time.Now()}}

	a := New(nil)
	first := a.Compute(s, hints, 42)
	second := a.Compute(s, hints, 42)

	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, first.WPM, second.WPM, 1e-4)
	assert.InDelta(t, first.PauseRate, second.PauseRate, 1e-4)
	assert.InDelta(t, first.HintDependency, second.HintDependency, 1e-4)
	assert.InDelta(t, first.ConceptCoverage, second.ConceptCoverage, 1e-4)
}
