package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/llms"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/retrieval"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
)

// callLog records port invocations in order across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// scriptedLLM returns queued responses in order, then repeats the last one.
type scriptedLLM struct {
	mu     sync.Mutex
	script []string
	err    error
	log    *callLog
}

func (s *scriptedLLM) Generate(_ context.Context, _ string, _ llms.GenerateOptions) (*llms.Result, error) {
	if s.log != nil {
		s.log.add("llm")
	}
	if s.err != nil {
		return nil, s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	text := "ok"
	if len(s.script) > 0 {
		text = s.script[0]
		if len(s.script) > 1 {
			s.script = s.script[1:]
		}
	}
	return &llms.Result{Text: text, Model: "scripted"}, nil
}

func (s *scriptedLLM) ModelName() string { return "scripted" }
func (s *scriptedLLM) Close() error      { return nil }

// fakeRetriever serves canned documents or a permanent failure.
type fakeRetriever struct {
	docs []retrieval.ScoredDocument
	err  error
	log  *callLog
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ retrieval.SearchContext) (*retrieval.Result, error) {
	if f.log != nil {
		f.log.add("retrieve")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &retrieval.Result{Documents: f.docs, TotalFound: len(f.docs)}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []ErrorRecord
}

func (p *recordingPublisher) Publish(_ context.Context, rec ErrorRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

func testConfig() *config.TutoringConfig {
	cfg := &config.TutoringConfig{}
	cfg.SetDefaults()
	return cfg
}

func newTestEngine(t *testing.T, llm llms.Provider, retriever ContextRetriever, opts ...Option) (*Engine, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	e, err := New(testConfig(), llm, retriever, store, opts...)
	require.NoError(t, err)
	return e, store
}

func startSession(t *testing.T, e *Engine, concepts []string) string {
	t.Helper()
	res, err := e.StartSession(context.Background(), StartRequest{
		QuestionID:       "q-1",
		StudentID:        "stu-1",
		QuestionText:     "Solve 3x+5=20",
		StandardSolution: "x=5",
		RequiredConcepts: concepts,
	})
	require.NoError(t, err)
	assert.Equal(t, fsm.StateListening, res.State)
	assert.NotEmpty(t, res.InitialMessage)
	return res.SessionID
}

func TestCleanConsolidation(t *testing.T) {
	llm := &scriptedLLM{script: []string{
		`{"logic_complete":true,"covered_concepts":["linear_eq"],"feedback":"solid"}`,
		"Great work, let's recap what you did.",
	}}
	e, _ := newTestEngine(t, llm, &fakeRetriever{})
	id := startSession(t, e, []string{"linear_eq"})

	resp := e.ProcessStudentInput(context.Background(), StudentInput{
		SessionID: id, Text: "3x equals 15 so x equals 5",
	})

	assert.Equal(t, ResponseConsolidate, resp.Type)
	assert.Equal(t, fsm.StateConsolidating, resp.State)

	summary, err := e.EndSession(context.Background(), id)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, summary.ConceptCoverage, 1e-9)
	assert.Equal(t, fsm.StateIdle, summary.FinalState)
}

func TestSilenceTriggeredHint(t *testing.T) {
	llm := &scriptedLLM{script: []string{"Try thinking about what operation undoes addition."}}
	e, store := newTestEngine(t, llm, &fakeRetriever{})
	id := startSession(t, e, []string{"linear_eq"})

	// Below threshold: no state change, no response, no transcript entry.
	assert.Nil(t, e.HandleSilence(context.Background(), id, 3))

	resp := e.HandleSilence(context.Background(), id, 6)
	require.NotNil(t, resp)
	assert.Equal(t, ResponseHint, resp.Type)
	assert.Equal(t, hint.LevelDirection, resp.HintLevel)
	assert.Equal(t, fsm.StateListening, resp.State, "the dialog returns to listening after the hint")

	state, ok := e.GetState(id)
	require.True(t, ok)
	assert.Equal(t, fsm.StateListening, state)

	// The silence turn carries the state it arrived in, same as any
	// student turn; the tutor's hint carries the hinting state.
	turns, err := store.ListConversation(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "(silence)", turns[0].Content)
	assert.Equal(t, session.SpeakerStudent, turns[0].Speaker)
	assert.Equal(t, fsm.StateListening, turns[0].State)
	assert.Equal(t, session.SpeakerTutor, turns[1].Speaker)
	assert.Equal(t, fsm.StateHinting, turns[1].State)
}

func TestRepairWithGuardrailAndErrorBook(t *testing.T) {
	llm := &scriptedLLM{script: []string{
		`{"logic_error":true,"error_type":"concept","missing_concepts":["B"],"feedback":"mixed up operations"}`,
		"Look again: the answer is x=5, does adding fit the equation?",
		`{"covered_concepts":["A"],"feedback":"better"}`,
		"Good, keep going.",
	}}
	pub := &recordingPublisher{}
	e, _ := newTestEngine(t, llm, &fakeRetriever{}, WithErrorBook(pub))
	id := startSession(t, e, []string{"A", "B"})

	resp := e.ProcessStudentInput(context.Background(), StudentInput{
		SessionID: id, Text: "I added instead of multiplying",
	})
	assert.Equal(t, ResponseRepair, resp.Type)
	assert.Equal(t, fsm.StateRepair, resp.State)
	assert.NotContains(t, resp.Text, "x=5", "standard solution must be redacted outside consolidation")

	require.Len(t, pub.recs, 1)
	assert.Equal(t, "concept", pub.recs[0].ErrorType)
	assert.Equal(t, "stu-1", pub.recs[0].StudentID)
	assert.Equal(t, "x=5", pub.recs[0].CorrectAnswer)

	resp = e.ProcessStudentInput(context.Background(), StudentInput{
		SessionID: id, Text: "okay, multiplying gives 3x=15",
	})
	assert.Equal(t, fsm.StateListening, resp.State)
}

func TestHintLadderSaturation(t *testing.T) {
	llm := &scriptedLLM{script: []string{"here is a nudge"}}
	e, store := newTestEngine(t, llm, &fakeRetriever{})
	id := startSession(t, e, []string{"linear_eq"})

	var levels []hint.Level
	for i := 0; i < 4; i++ {
		resp := e.ProcessStudentInput(context.Background(), StudentInput{
			SessionID: id, Text: "give me a hint",
		})
		require.Equal(t, ResponseHint, resp.Type)
		levels = append(levels, resp.HintLevel)
	}
	assert.Equal(t, []hint.Level{1, 2, 3, 3}, levels)

	summary, err := e.EndSession(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, summary.HintsUsed, 4)

	report := store.Report(id)
	require.NotNil(t, report)
	// clamp(1 - (0.2+0.5+1.0+1.0)/4) over 4 student turns.
	assert.InDelta(t, 0.325, report.HintDependency, 1e-9)
}

func TestLLMOutageFallback(t *testing.T) {
	broken := &scriptedLLM{err: errors.New("connection refused")}
	resilient := llms.NewResilient(broken, time.Second, true, "sorry, unavailable")
	e, _ := newTestEngine(t, resilient, &fakeRetriever{})
	id := startSession(t, e, []string{"linear_eq"})

	resp := e.ProcessStudentInput(context.Background(), StudentInput{
		SessionID: id, Text: "I think x is 5",
	})
	assert.Equal(t, "sorry, unavailable", resp.Text)
	assert.Equal(t, ResponseAcknowledge, resp.Type)
	assert.True(t, resp.Degraded)
	assert.Equal(t, fsm.StateListening, resp.State, "degraded analysis keeps the dialog listening")
}

func TestModelMissingStillAnswersStudent(t *testing.T) {
	broken := &scriptedLLM{err: &llms.ModelMissingError{Model: "ghost"}}
	resilient := llms.NewResilient(broken, time.Second, true, "sorry, unavailable")
	e, _ := newTestEngine(t, resilient, &fakeRetriever{})
	id := startSession(t, e, []string{"linear_eq"})

	// The provider surfaces the missing model as a hard error; the dialog
	// still owes the student a sentence and a consistent state.
	resp := e.ProcessStudentInput(context.Background(), StudentInput{
		SessionID: id, Text: "I think x is 5",
	})
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Text)
	assert.True(t, resp.Degraded)
	assert.Equal(t, fsm.StateListening, resp.State)
}

func TestRetrievalOutagePipelineCompletes(t *testing.T) {
	llm := &scriptedLLM{script: []string{
		`{"covered_concepts":[],"feedback":"ok"}`,
		"Keep going.",
	}}
	e, _ := newTestEngine(t, llm, &fakeRetriever{err: retrieval.ErrUnavailable})
	id := startSession(t, e, []string{"linear_eq"})

	resp := e.ProcessStudentInput(context.Background(), StudentInput{
		SessionID: id, Text: "first I subtract five",
	})
	require.NotNil(t, resp)
	assert.Equal(t, "Keep going.", resp.Text)
	assert.False(t, resp.Degraded)
}

func TestRetrievalCompletesBeforeLLMCalls(t *testing.T) {
	log := &callLog{}
	llm := &scriptedLLM{log: log, script: []string{
		`{"covered_concepts":[],"feedback":"ok"}`,
		"Keep going.",
	}}
	e, _ := newTestEngine(t, llm, &fakeRetriever{log: log})
	id := startSession(t, e, []string{"linear_eq"})

	e.ProcessStudentInput(context.Background(), StudentInput{SessionID: id, Text: "step one"})

	calls := log.all()
	require.Equal(t, []string{"retrieve", "llm", "llm"}, calls,
		"retrieval must complete before both the analysis and tutor calls")
}

func TestUnknownSessionAcknowledges(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedLLM{}, &fakeRetriever{})

	resp := e.ProcessStudentInput(context.Background(), StudentInput{SessionID: "ghost", Text: "hello"})
	assert.Equal(t, ResponseAcknowledge, resp.Type)
	assert.Equal(t, fsm.StateIdle, resp.State)

	assert.Nil(t, e.HandleSilence(context.Background(), "ghost", 10))

	_, err := e.EndSession(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestEndedSessionRejectsFurtherInput(t *testing.T) {
	llm := &scriptedLLM{}
	e, _ := newTestEngine(t, llm, &fakeRetriever{})
	id := startSession(t, e, []string{"linear_eq"})

	_, err := e.EndSession(context.Background(), id)
	require.NoError(t, err)

	resp := e.ProcessStudentInput(context.Background(), StudentInput{SessionID: id, Text: "more"})
	assert.Equal(t, ResponseAcknowledge, resp.Type)

	_, ok := e.GetState(id)
	assert.False(t, ok)
}

func TestTurnNumbersPersistStrictlyIncreasing(t *testing.T) {
	llm := &scriptedLLM{script: []string{
		`{"covered_concepts":[],"feedback":"ok"}`,
		"reply one",
		`{"covered_concepts":[],"feedback":"ok"}`,
		"reply two",
	}}
	e, store := newTestEngine(t, llm, &fakeRetriever{})
	id := startSession(t, e, []string{"linear_eq"})

	e.ProcessStudentInput(context.Background(), StudentInput{SessionID: id, Text: "first"})
	e.ProcessStudentInput(context.Background(), StudentInput{SessionID: id, Text: "second"})

	turns, err := store.ListConversation(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Number)
	}
	assert.Equal(t, session.SpeakerStudent, turns[0].Speaker)
	assert.Equal(t, session.SpeakerTutor, turns[1].Speaker)
}

func TestListActiveAndCleanup(t *testing.T) {
	llm := &scriptedLLM{}
	e, _ := newTestEngine(t, llm, &fakeRetriever{})

	a := startSession(t, e, nil)
	b := startSession(t, e, nil)
	assert.ElementsMatch(t, []string{a, b}, e.ListActive())

	// Nothing is stale yet.
	assert.Equal(t, 0, e.Cleanup(context.Background(), time.Minute))

	// Everything is stale with a zero max age.
	assert.Equal(t, 2, e.Cleanup(context.Background(), 0))
	assert.Empty(t, e.ListActive())
}
