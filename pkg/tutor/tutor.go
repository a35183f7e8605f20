// Package tutor is the public surface of the tutoring engine. It wires the
// configured providers into the dialog core and exposes the session
// lifecycle as a single façade, so embedders of the library touch one type.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/embedders"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/engine"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/llms"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/logger"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/observability"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/retrieval"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/vector"
)

// Service is the assembled tutoring engine.
type Service struct {
	cfg       *config.Config
	engine    *engine.Engine
	retriever *retrieval.Retriever
	llm       llms.Provider
	store     session.Store
	pool      *config.DBPool
	logger    *slog.Logger
}

// Option customizes service assembly.
type Option func(*assembly)

type assembly struct {
	errorBook  engine.ErrorBookPublisher
	classifier engine.HintRequestClassifier
	skipLogger bool
}

// WithErrorBook wires a repair-event collaborator into the dialog core.
func WithErrorBook(p engine.ErrorBookPublisher) Option {
	return func(a *assembly) { a.errorBook = p }
}

// WithClassifier overrides the hint-request classifier.
func WithClassifier(c HintRequestClassifier) Option {
	return func(a *assembly) { a.classifier = c }
}

// WithoutLoggerInit leaves the process-wide logger alone. For embedding the
// service in a host that already configured slog.
func WithoutLoggerInit() Option {
	return func(a *assembly) { a.skipLogger = true }
}

// HintRequestClassifier re-exports the engine port for embedders.
type HintRequestClassifier = engine.HintRequestClassifier

// New assembles a Service from configuration: logger, observability,
// embedding and vector providers, retrieval, the resilient LLM client,
// session persistence, and the dialog engine on top.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &assembly{}
	for _, opt := range opts {
		opt(a)
	}

	if !a.skipLogger {
		if err := initLogger(&cfg.Logger); err != nil {
			return nil, err
		}
	}
	log := logger.GetLogger()

	if _, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Observability.TracingEnabled,
		SamplingRate: cfg.Observability.SamplingRate,
		ServiceName:  cfg.Observability.ServiceName,
	}); err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	if _, err := observability.InitMetrics(ctx, observability.MetricsConfig{
		Enabled: cfg.Observability.MetricsEnabled,
	}); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	embedder, err := embedders.NewOllamaEmbedder(&cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vectorStore, err := vector.New(&cfg.Vector)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	retriever, err := retrieval.New(embedder, vectorStore, cfg.Vector.Collection, &cfg.Tutoring,
		retrieval.WithLogger(log))
	if err != nil {
		embedder.Close()
		vectorStore.Close()
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	inner, err := llms.NewOllamaProvider(&cfg.LLM)
	if err != nil {
		retriever.Close()
		return nil, fmt.Errorf("failed to create llm provider: %w", err)
	}
	llm := llms.NewResilient(inner,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second,
		cfg.LLM.EnableFallback == nil || *cfg.LLM.EnableFallback,
		cfg.LLM.FallbackText,
		llms.WithResilientLogger(log))

	var (
		store session.Store
		pool  *config.DBPool
	)
	if cfg.Database != nil {
		pool = config.NewDBPool()
		sqlStore, err := session.NewSQLStore(pool, cfg.Database)
		if err != nil {
			retriever.Close()
			llm.Close()
			pool.Close()
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		store = sqlStore
	} else {
		store = session.NewMemoryStore()
	}

	engineOpts := []engine.Option{engine.WithLogger(log)}
	if a.errorBook != nil {
		engineOpts = append(engineOpts, engine.WithErrorBook(a.errorBook))
	}
	if a.classifier != nil {
		engineOpts = append(engineOpts, engine.WithClassifier(a.classifier))
	}

	eng, err := engine.New(&cfg.Tutoring, llm, retriever, store, engineOpts...)
	if err != nil {
		retriever.Close()
		llm.Close()
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	log.Info("Tutoring service ready",
		"llm_model", cfg.LLM.Model,
		"embedder_model", cfg.Embedder.Model,
		"vector_provider", cfg.Vector.Provider,
		"durable_sessions", cfg.Database != nil)

	return &Service{
		cfg:       cfg,
		engine:    eng,
		retriever: retriever,
		llm:       llm,
		store:     store,
		pool:      pool,
		logger:    log,
	}, nil
}

func initLogger(cfg *config.LoggerConfig) error {
	level, _ := logger.ParseLevel(cfg.Level)
	output := os.Stderr
	if cfg.File != "" {
		file, _, err := logger.OpenLogFile(cfg.File)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
	}
	logger.Init(level, output, cfg.Format)
	return nil
}

// Start opens a tutoring session.
func (s *Service) Start(ctx context.Context, req engine.StartRequest) (*engine.StartResult, error) {
	return s.engine.StartSession(ctx, req)
}

// Input feeds one student utterance and returns the tutor's move.
func (s *Service) Input(ctx context.Context, in engine.StudentInput) *engine.TutorResponse {
	return s.engine.ProcessStudentInput(ctx, in)
}

// Silence reports a silence interval. The response is nil unless the silence
// crossed the hint threshold.
func (s *Service) Silence(ctx context.Context, sessionID string, durationSeconds float64) *engine.TutorResponse {
	return s.engine.HandleSilence(ctx, sessionID, durationSeconds)
}

// End closes a session and returns its summary.
func (s *Service) End(ctx context.Context, sessionID string) (*engine.SessionSummary, error) {
	return s.engine.EndSession(ctx, sessionID)
}

// State reports the session's dialog state.
func (s *Service) State(sessionID string) (fsm.State, bool) {
	return s.engine.GetState(sessionID)
}

// ListActive returns ids of live sessions.
func (s *Service) ListActive() []string {
	return s.engine.ListActive()
}

// Cleanup ends sessions idle longer than maxAge.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) int {
	return s.engine.Cleanup(ctx, maxAge)
}

// IndexCorpus embeds and stores reference documents for retrieval.
func (s *Service) IndexCorpus(ctx context.Context, docs []retrieval.Document, concurrency int) error {
	return s.retriever.IndexBatch(ctx, docs, concurrency)
}

// Retriever exposes the retrieval port for direct corpus queries.
func (s *Service) Retriever() *retrieval.Retriever {
	return s.retriever
}

// Store exposes the session store for read-side queries.
func (s *Service) Store() session.Store {
	return s.store
}

// Close ends every live session, then releases providers and storage.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range s.engine.ListActive() {
		if _, err := s.engine.EndSession(ctx, id); err != nil {
			s.logger.Warn("Failed to end session on close", "session_id", id, "error", err)
		}
	}

	var errs []error
	if err := s.retriever.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.llm.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
