// Package hint implements the per-session hint ladder.
//
// Levels progress 1 (direction) → 2 (key step) → 3 (solution skeleton) and
// saturate at 3. Every issued hint is recorded; the weighted sum of issued
// hints feeds the session's hint-dependency score.
package hint

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level is a hint level in the ladder.
type Level int

const (
	LevelDirection Level = 1
	LevelKeyStep   Level = 2
	LevelSkeleton  Level = 3
)

// DefaultWeights maps each level to its dependency weight.
var DefaultWeights = map[Level]float64{
	LevelDirection: 0.2,
	LevelKeyStep:   0.5,
	LevelSkeleton:  1.0,
}

// Record is one issued hint.
type Record struct {
	SessionID string    `json:"session_id"`
	Level     Level     `json:"level"`
	Concept   string    `json:"concept"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists hint records. The session store implements this; a nil
// store keeps records in memory only.
type Store interface {
	AppendHint(ctx context.Context, rec Record) error
}

// Controller is the per-session hint ladder. Safe for concurrent use.
type Controller struct {
	sessionID string
	store     Store
	weights   map[Level]float64
	logger    *slog.Logger

	mu      sync.Mutex
	level   Level
	concept string
	records []Record
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore enables write-through persistence of hint records.
func WithStore(store Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithWeights overrides the dependency weights.
func WithWeights(weights map[Level]float64) Option {
	return func(c *Controller) {
		if len(weights) > 0 {
			c.weights = weights
		}
	}
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a controller for one session, starting the ladder at level 1
// for the given concept.
func New(sessionID, concept string, opts ...Option) *Controller {
	c := &Controller{
		sessionID: sessionID,
		weights:   DefaultWeights,
		logger:    slog.Default(),
		level:     LevelDirection,
		concept:   concept,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request returns the current level, records the hint, then advances the
// ladder toward 3 (saturating). An empty concept uses the controller's
// current concept.
func (c *Controller) Request(ctx context.Context, concept string) Level {
	c.mu.Lock()

	if concept == "" {
		concept = c.concept
	}

	issued := c.level
	rec := Record{
		SessionID: c.sessionID,
		Level:     issued,
		Concept:   concept,
		Timestamp: time.Now(),
	}
	c.records = append(c.records, rec)

	if c.level < LevelSkeleton {
		c.level++
	}
	store := c.store
	c.mu.Unlock()

	// Write-through outside the lock; a persistence failure never blocks
	// the hint (§7: in-memory state stays authoritative).
	if store != nil {
		if err := store.AppendHint(ctx, rec); err != nil {
			c.logger.Warn("failed to persist hint record",
				"session_id", c.sessionID,
				"level", int(rec.Level),
				"error", err)
		}
	}

	return issued
}

// ResetForConcept restarts the ladder at level 1 for a new concept without
// clearing history.
func (c *Controller) ResetForConcept(concept string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = LevelDirection
	c.concept = concept
}

// CurrentLevel returns the level the next request would issue.
func (c *Controller) CurrentLevel() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Count returns the total number of hints issued.
func (c *Controller) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Histogram returns the count of issued hints per level.
func (c *Controller) Histogram() map[Level]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := make(map[Level]int, 3)
	for _, rec := range c.records {
		hist[rec.Level]++
	}
	return hist
}

// Records returns a copy of the session hint log in issue order.
func (c *Controller) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// DependencyScore computes clamp(1 - Σweights/totalTurns, 0, 1).
// With no turns or no hints the student is fully independent (1.0).
func (c *Controller) DependencyScore(totalTurns int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Dependency(c.records, c.weights, totalTurns)
}

// Dependency is the pure scoring function shared with the metrics
// aggregator for deterministic recomputation.
func Dependency(records []Record, weights map[Level]float64, totalTurns int) float64 {
	if totalTurns <= 0 || len(records) == 0 {
		return 1.0
	}
	if weights == nil {
		weights = DefaultWeights
	}

	var sum float64
	for _, rec := range records {
		sum += weights[rec.Level]
	}

	score := 1.0 - sum/float64(totalTurns)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
