package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "tutor.db"),
	}
	cfg.SetDefaults()

	pool := config.NewDBPool()
	t.Cleanup(func() { _ = pool.Close() })

	store, err := NewSQLStore(pool, cfg)
	require.NoError(t, err)
	return store
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	s := newSession()

	require.NoError(t, store.CreateSession(ctx, s))

	turn, err := s.AppendTurn(SpeakerStudent, "I square both sides", fsm.StateListening, &AudioFeatures{
		DurationSeconds: 6.0, WordCount: 4, PauseCount: 2, TotalPauseDuration: 1.2,
	})
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, s.ID, turn))

	tutorTurn, err := s.AppendTurn(SpeakerTutor, "What happens to the sign?", fsm.StateProbing, nil)
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, s.ID, tutorTurn))

	require.NoError(t, store.AppendHint(ctx, hint.Record{
		SessionID: s.ID, Level: hint.LevelKeyStep, Concept: "negative_root", Timestamp: time.Now(),
	}))

	s.Finalize()
	require.NoError(t, store.FinalizeSession(ctx, s, "IDLE", 0.5))

	stored, err := store.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "stu-1", stored.StudentID)
	assert.Equal(t, "IDLE", stored.FinalState)
	assert.InDelta(t, 0.5, stored.Coverage, 1e-9)

	turns, err := store.ListConversation(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, 1, turns[0].Number)
	assert.Equal(t, SpeakerStudent, turns[0].Speaker)
	require.NotNil(t, turns[0].Audio)
	assert.InDelta(t, 1.2, turns[0].Audio.TotalPauseDuration, 1e-9)
	assert.Nil(t, turns[1].Audio)

	hints, err := store.ListHints(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, hint.LevelKeyStep, hints[0].Level)

	ids, err := store.ListStudentSessions(ctx, "stu-1")
	require.NoError(t, err)
	assert.Contains(t, ids, s.ID)
}

func TestSQLStoreMetricsReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	s := newSession()
	require.NoError(t, store.CreateSession(ctx, s))

	report := &MetricsReport{
		ID:                   "report-1",
		SessionID:            s.ID,
		WPM:                  92.5,
		PauseRate:            0.18,
		HintDependency:       0.825,
		ConceptCoverage:      0.5,
		FocusDurationSeconds: 300,
		ComputedAt:           time.Now().UTC(),
	}
	require.NoError(t, store.WriteMetricsReport(ctx, report))

	got, err := store.LoadMetricsReport(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, report.WPM, got.WPM, 1e-4)
	assert.InDelta(t, report.PauseRate, got.PauseRate, 1e-4)
	assert.InDelta(t, report.HintDependency, got.HintDependency, 1e-4)
	assert.InDelta(t, report.ConceptCoverage, got.ConceptCoverage, 1e-4)

	// Re-writing replaces rather than duplicates.
	report.WPM = 80.0
	require.NoError(t, store.WriteMetricsReport(ctx, report))
	got, err = store.LoadMetricsReport(ctx, s.ID)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, got.WPM, 1e-4)
}

func TestSQLStoreLoadMissing(t *testing.T) {
	store := newSQLiteStore(t)

	stored, err := store.LoadSession(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, stored)

	report, err := store.LoadMetricsReport(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, report)
}
