package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/analysis"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/llms"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/metrics"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/observability"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/prompt"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/retrieval"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
)

// ContextRetriever is the slice of the retrieval port the engine consumes.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, sc retrieval.SearchContext) (*retrieval.Result, error)
}

// liveSession bundles the per-session state. Its mutex serializes turns:
// no two operations on the same session run concurrently.
type liveSession struct {
	mu           sync.Mutex
	sess         *session.Session
	fsmc         *fsm.Controller
	hints        *hint.Controller
	lastActivity time.Time
}

// Engine orchestrates the per-turn pipeline across concurrent sessions.
type Engine struct {
	cfg        *config.TutoringConfig
	llm        llms.Provider
	retriever  ContextRetriever
	composer   *prompt.Composer
	store      session.Store
	aggregator *metrics.Aggregator
	errorBook  ErrorBookPublisher
	classifier HintRequestClassifier
	logger     *slog.Logger
	tracer     trace.Tracer

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// Option configures an Engine.
type Option func(*Engine)

// WithErrorBook wires the repair-event collaborator.
func WithErrorBook(p ErrorBookPublisher) Option {
	return func(e *Engine) { e.errorBook = p }
}

// WithClassifier overrides the hint-request classifier.
func WithClassifier(c HintRequestClassifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. A nil store falls back to in-memory persistence.
func New(cfg *config.TutoringConfig, llm llms.Provider, retriever ContextRetriever, store session.Store, opts ...Option) (*Engine, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if cfg == nil {
		cfg = &config.TutoringConfig{}
		cfg.SetDefaults()
	}
	if store == nil {
		store = session.NewMemoryStore()
	}

	e := &Engine{
		cfg:        cfg,
		llm:        llm,
		retriever:  retriever,
		composer:   prompt.New(cfg.PromptHistoryTurns, cfg.PromptMaxRetrievedDocs),
		store:      store,
		aggregator: metrics.New(hintWeights(cfg)),
		errorBook:  NopPublisher{},
		classifier: NewKeywordClassifier(cfg.HintRequestKeywords),
		logger:     slog.Default(),
		tracer:     observability.GetTracer("engine"),
		sessions:   make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func hintWeights(cfg *config.TutoringConfig) map[hint.Level]float64 {
	if len(cfg.HintWeights) == 0 {
		return nil
	}
	out := make(map[hint.Level]float64, len(cfg.HintWeights))
	for level, w := range cfg.HintWeights {
		out[hint.Level(level)] = w
	}
	return out
}

// StartSession allocates a session, fires SESSION_START, and returns the
// handle with a greeting.
func (e *Engine) StartSession(ctx context.Context, req StartRequest) (*StartResult, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanSessionStart)
	defer span.End()

	id := uuid.NewString()
	span.SetAttributes(attribute.String(observability.AttrSessionID, id))

	sess := session.New(id, req.StudentID, req.QuestionID, req.QuestionText, req.StandardSolution, req.RequiredConcepts)

	fsmc := fsm.New(fsm.Config{
		SilenceThreshold:  e.cfg.SilenceThresholdSeconds,
		CoverageThreshold: e.cfg.CoverageThreshold,
	})
	fsmc.Apply(fsm.Event{Type: fsm.EventSessionStart})

	hintStore, _ := e.store.(hint.Store)
	hintOpts := []hint.Option{hint.WithWeights(hintWeights(e.cfg)), hint.WithLogger(e.logger)}
	if hintStore != nil {
		hintOpts = append(hintOpts, hint.WithStore(hintStore))
	}
	hints := hint.New(id, sess.FirstRequiredConcept(), hintOpts...)

	ls := &liveSession{
		sess:         sess,
		fsmc:         fsmc,
		hints:        hints,
		lastActivity: time.Now(),
	}

	e.mu.Lock()
	e.sessions[id] = ls
	e.mu.Unlock()

	// A persistence failure leaves memory authoritative.
	if err := e.store.CreateSession(ctx, sess); err != nil {
		e.logger.Warn("Failed to persist session start", "session_id", id, "error", err)
	}

	e.logger.Info("Session started",
		"session_id", id,
		"student_id", req.StudentID,
		"question_id", req.QuestionID)

	return &StartResult{
		SessionID:      id,
		State:          fsmc.Current(),
		InitialMessage: fmt.Sprintf("Let's work on this together:\n%s\nTalk me through your thinking as you go.", req.QuestionText),
	}, nil
}

// ProcessStudentInput runs the per-turn pipeline. It always returns a valid
// response; failures along the way degrade instead of erroring.
func (e *Engine) ProcessStudentInput(ctx context.Context, input StudentInput) *TutorResponse {
	ctx, span := e.tracer.Start(ctx, observability.SpanTurn,
		trace.WithAttributes(attribute.String(observability.AttrSessionID, input.SessionID)))
	defer span.End()

	// 1. Lookup. Unknown or ended sessions get a benign acknowledge.
	ls := e.lookup(input.SessionID)
	if ls == nil {
		return &TutorResponse{
			Text:  "I can't find that session. Please start a new one.",
			Type:  ResponseAcknowledge,
			State: fsm.StateIdle,
		}
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.lastActivity = time.Now()

	if ls.sess.Terminal() {
		return &TutorResponse{
			Text:  "This session has already ended. Please start a new one.",
			Type:  ResponseAcknowledge,
			State: fsm.StateIdle,
		}
	}

	defer observability.GetGlobalMetrics().RecordTurn(ctx)

	// 2. Record the student turn at the state it arrived in.
	e.recordTurn(ctx, ls, session.SpeakerStudent, input.Text, ls.fsmc.Current(), input.Audio)

	// 3. Hint request short-circuits the analysis pipeline.
	if e.classifier.IsHintRequest(input.Text) {
		ls.fsmc.Apply(fsm.Event{Type: fsm.EventHintRequest})
		return e.hintFlow(ctx, ls, input.Text)
	}

	// 4. LISTENING → ANALYZING.
	ls.fsmc.Apply(fsm.Event{Type: fsm.EventStudentInput})
	span.SetAttributes(attribute.String(observability.AttrFSMState, string(ls.fsmc.Current())))

	// 5. Retrieval runs before either LLM call. Failures become an empty
	// reference set.
	docs := e.retrieveDocs(ctx, ls, input.Text)

	// 6. Analysis LLM call, degraded to a conservative result on any
	// failure.
	result := e.analyze(ctx, ls, input.Text)

	// 7–8. Merge coverage, then advance by analysis priority.
	ls.sess.MergeCovered(result.CoveredConcepts)
	coverage := ls.sess.Coverage()
	newState := ls.fsmc.Apply(fsm.Event{
		Type:     fsm.EventAnalysisResult,
		Analysis: result,
		Coverage: coverage,
	})

	if newState == fsm.StateRepair {
		e.publishError(ctx, ls, input.Text, result)
	}

	// 9–10. Compose for the new state and generate.
	pctx := prompt.Context{
		QuestionText:    ls.sess.QuestionText,
		StudentInput:    input.Text,
		History:         ls.sess.Turns(),
		Documents:       docs,
		Concept:         e.focusConcept(ls),
		Coverage:        coverage,
		MissingConcepts: result.MissingConcepts,
	}
	system, user := e.composer.Compose(newState, pctx)
	gen := e.generate(ctx, system, user)

	text := e.redact(ls, newState, gen.Text)

	// 11–12. Classify, record the tutor turn, respond.
	e.recordTurn(ctx, ls, session.SpeakerTutor, text, newState, nil)

	return &TutorResponse{
		Text:              text,
		Type:              responseTypeFor(newState),
		RelatedConcepts:   relatedConcepts(result),
		SuggestedNextStep: suggestedStep(result),
		State:             newState,
		Degraded:          gen.Degraded,
	}
}

// HandleSilence feeds a silence event. It returns a response only when the
// silence was long enough to trigger hinting; otherwise nil.
func (e *Engine) HandleSilence(ctx context.Context, sessionID string, durationSeconds float64) *TutorResponse {
	ls := e.lookup(sessionID)
	if ls == nil {
		return nil
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.lastActivity = time.Now()

	if ls.sess.Terminal() {
		return nil
	}

	prev := ls.fsmc.Current()
	newState := ls.fsmc.Apply(fsm.Event{
		Type:            fsm.EventSilenceDetected,
		SilenceDuration: durationSeconds,
	})
	if newState != fsm.StateHinting {
		return nil
	}

	// The silence turn keeps the transcript honest; metrics exclude it.
	// Like any student turn it carries the state it arrived in, not the
	// state it caused.
	e.recordTurn(ctx, ls, session.SpeakerStudent, "(silence)", prev, nil)
	return e.hintFlow(ctx, ls, "(silence)")
}

// hintFlow runs the hint branch. The FSM must already be in HINTING.
func (e *Engine) hintFlow(ctx context.Context, ls *liveSession, query string) *TutorResponse {
	concept := e.focusConcept(ls)
	level := ls.hints.Request(ctx, concept)
	observability.GetGlobalMetrics().RecordHint(ctx)

	docs := e.retrieveDocs(ctx, ls, query)

	pctx := prompt.Context{
		QuestionText: ls.sess.QuestionText,
		StudentInput: query,
		History:      ls.sess.Turns(),
		Documents:    docs,
		Concept:      concept,
		HintLevel:    level,
		Coverage:     ls.sess.Coverage(),
	}
	system, user := e.composer.Compose(fsm.StateHinting, pctx)
	gen := e.generate(ctx, system, user)

	text := e.redact(ls, fsm.StateHinting, gen.Text)
	e.recordTurn(ctx, ls, session.SpeakerTutor, text, fsm.StateHinting, nil)

	// Synthetic transition back to listening; marked in the audit trail.
	finalState := ls.fsmc.Apply(fsm.Event{
		Type:     fsm.EventAnalysisResult,
		Analysis: &analysis.Result{ContinueListening: true},
	})

	return &TutorResponse{
		Text:            text,
		Type:            ResponseHint,
		HintLevel:       level,
		RelatedConcepts: []string{concept},
		State:           finalState,
		Degraded:        gen.Degraded,
	}
}

// EndSession fires SESSION_END, persists the metrics report, and returns
// the summary. The per-session lock makes an in-flight turn finish first.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (*SessionSummary, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanSessionEnd,
		trace.WithAttributes(attribute.String(observability.AttrSessionID, sessionID)))
	defer span.End()

	e.mu.Lock()
	ls, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	finalState := ls.fsmc.Apply(fsm.Event{Type: fsm.EventSessionEnd})
	ls.sess.Finalize()

	coverage := ls.sess.Coverage()
	if err := e.store.FinalizeSession(ctx, ls.sess, string(finalState), coverage); err != nil {
		e.logger.Warn("Failed to persist session end", "session_id", sessionID, "error", err)
	}

	report := e.aggregator.Compute(ls.sess, ls.hints.Records(), 0)
	if err := e.store.WriteMetricsReport(ctx, report); err != nil {
		e.logger.Warn("Failed to persist metrics report", "session_id", sessionID, "error", err)
	}

	e.logger.Info("Session ended",
		"session_id", sessionID,
		"turns", ls.sess.TurnCount(),
		"coverage", coverage,
		"hint_dependency", report.HintDependency)

	return &SessionSummary{
		SessionID:       sessionID,
		DurationSeconds: ls.sess.Duration().Seconds(),
		ConceptsCovered: ls.sess.CoveredConcepts(),
		ConceptCoverage: coverage,
		HintsUsed:       ls.hints.Records(),
		TotalTurns:      ls.sess.TurnCount(),
		FinalState:      finalState,
	}, nil
}

// GetState reports a session's current FSM state.
func (e *Engine) GetState(sessionID string) (fsm.State, bool) {
	ls := e.lookup(sessionID)
	if ls == nil {
		return "", false
	}
	return ls.fsmc.Current(), true
}

// ListActive returns the ids of live sessions, sorted.
func (e *Engine) ListActive() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cleanup ends sessions idle for longer than maxAge and returns how many
// were closed.
func (e *Engine) Cleanup(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	e.mu.RLock()
	var stale []string
	for id, ls := range e.sessions {
		ls.mu.Lock()
		idle := ls.lastActivity.Before(cutoff)
		ls.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	e.mu.RUnlock()

	for _, id := range stale {
		if _, err := e.EndSession(ctx, id); err != nil {
			e.logger.Warn("Cleanup failed to end session", "session_id", id, "error", err)
		}
	}
	return len(stale)
}

func (e *Engine) lookup(sessionID string) *liveSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[sessionID]
}

// retrieveDocs calls the retrieval port; failures degrade to no documents.
func (e *Engine) retrieveDocs(ctx context.Context, ls *liveSession, query string) []retrieval.ScoredDocument {
	result, err := e.retriever.Retrieve(ctx, query, retrieval.SearchContext{
		KnowledgeNodes: ls.sess.RequiredConcepts(),
		MaxResults:     e.cfg.RetrievalMaxResults,
		MinSimilarity:  float32(e.cfg.RetrievalMinSimilarity),
	})
	if err != nil {
		e.logger.Warn("Retrieval unavailable, proceeding without references",
			"session_id", ls.sess.ID, "error", err)
		return nil
	}
	return result.Documents
}

// analyze runs the analysis LLM call and always produces a usable result.
func (e *Engine) analyze(ctx context.Context, ls *liveSession, text string) *analysis.Result {
	system, user := e.composer.AnalysisPrompt(text, ls.sess.QuestionText, ls.sess.StandardSolution)

	gen, err := e.llm.Generate(ctx, user, llms.GenerateOptions{System: system})
	if err != nil || gen.Degraded {
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = gen.DegradedReason
		}
		e.logger.Warn("Analysis call degraded", "session_id", ls.sess.ID, "reason", reason)
		return analysis.Conservative("")
	}

	result, ok := analysis.Parse(gen.Text)
	if !ok {
		e.logger.Warn("Analysis output was not parseable JSON", "session_id", ls.sess.ID)
		return analysis.Conservative(gen.Text)
	}
	return result
}

// generate runs the tutor LLM call. The provider's fallback policy means a
// nil error is not guaranteed only when fallback is disabled.
func (e *Engine) generate(ctx context.Context, system, user string) *llms.Result {
	gen, err := e.llm.Generate(ctx, user, llms.GenerateOptions{System: system})
	if err != nil {
		e.logger.Error("Tutor generation failed with fallback disabled", "error", err)
		return &llms.Result{
			Text:           "Let's pause for a second. Walk me through your last step again.",
			Degraded:       true,
			DegradedReason: err.Error(),
		}
	}
	return gen
}

// redact strips the standard solution from outgoing text in every state
// except CONSOLIDATING.
func (e *Engine) redact(ls *liveSession, state fsm.State, text string) string {
	solution := ls.sess.StandardSolution
	if solution == "" || state == fsm.StateConsolidating {
		return text
	}
	if strings.Contains(text, solution) {
		e.logger.Warn("Redacted standard solution from tutor response", "session_id", ls.sess.ID)
		return strings.ReplaceAll(text, solution, "…")
	}
	return text
}

// focusConcept picks the first required concept the student has not yet
// covered, falling back to the first required concept.
func (e *Engine) focusConcept(ls *liveSession) string {
	covered := make(map[string]bool)
	for _, c := range ls.sess.CoveredConcepts() {
		covered[c] = true
	}
	for _, c := range ls.sess.RequiredConcepts() {
		if !covered[c] {
			return c
		}
	}
	return ls.sess.FirstRequiredConcept()
}

func (e *Engine) recordTurn(ctx context.Context, ls *liveSession, speaker session.Speaker, content string, state fsm.State, audio *session.AudioFeatures) {
	turn, err := ls.sess.AppendTurn(speaker, content, state, audio)
	if err != nil {
		e.logger.Warn("Turn rejected", "session_id", ls.sess.ID, "error", err)
		return
	}
	if err := e.store.AppendTurn(ctx, ls.sess.ID, turn); err != nil {
		e.logger.Warn("Failed to persist turn", "session_id", ls.sess.ID, "turn", turn.Number, "error", err)
	}
}

func (e *Engine) publishError(ctx context.Context, ls *liveSession, studentAnswer string, result *analysis.Result) {
	rec := ErrorRecord{
		StudentID:     ls.sess.StudentID,
		QuestionID:    ls.sess.QuestionID,
		StudentAnswer: studentAnswer,
		CorrectAnswer: ls.sess.StandardSolution,
		ErrorType:     result.ErrorType,
		Tags:          result.MissingConcepts,
	}
	if err := e.errorBook.Publish(ctx, rec); err != nil {
		e.logger.Warn("Error-book publish failed", "session_id", ls.sess.ID, "error", err)
	}
}

func relatedConcepts(result *analysis.Result) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range append(append([]string{}, result.CoveredConcepts...), result.MissingConcepts...) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func suggestedStep(result *analysis.Result) string {
	if len(result.MissingConcepts) > 0 {
		return fmt.Sprintf("Think about %s next.", result.MissingConcepts[0])
	}
	return ""
}
