package llms

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Resilient wraps a Provider so that generation never surfaces an error to
// the dialog pipeline: after the inner provider exhausts its own transport
// retries, the wrapper substitutes the configured fallback text and marks
// the result Degraded. The student sees a gentle sentence, the operator
// sees a warning log and an error metric.
type Resilient struct {
	inner          Provider
	timeout        time.Duration
	enableFallback bool
	fallbackText   string
	logger         *slog.Logger
}

// ResilientOption configures the wrapper.
type ResilientOption func(*Resilient)

// WithResilientLogger overrides the default logger.
func WithResilientLogger(l *slog.Logger) ResilientOption {
	return func(r *Resilient) { r.logger = l }
}

// NewResilient wraps inner with timeout and fallback behavior.
func NewResilient(inner Provider, timeout time.Duration, enableFallback bool, fallbackText string, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		inner:          inner,
		timeout:        timeout,
		enableFallback: enableFallback,
		fallbackText:   fallbackText,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate implements Provider. With fallback enabled, transport failures
// return the fallback text with Result.Degraded set; a ModelMissingError is
// returned as an error either way, since it needs an operator, not a retry.
func (r *Resilient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.inner.Generate(ctx, prompt, opts)
	if err == nil {
		return result, nil
	}

	// A missing model is an operator problem, not a transient one: no
	// amount of fallback text fixes an unpulled model, so the error
	// surfaces even with fallback enabled.
	var missing *ModelMissingError
	if errors.As(err, &missing) {
		r.logger.Error("Configured model is missing on the inference server",
			"model", missing.Model)
		return nil, err
	}

	r.logger.Warn("LLM generation failed", "error", err, "model", r.inner.ModelName())

	if !r.enableFallback {
		return nil, err
	}

	return &Result{
		Text:           r.fallbackText,
		Model:          r.inner.ModelName(),
		Degraded:       true,
		DegradedReason: err.Error(),
	}, nil
}

// ModelName implements Provider.
func (r *Resilient) ModelName() string {
	return r.inner.ModelName()
}

// Close implements Provider.
func (r *Resilient) Close() error {
	return r.inner.Close()
}

var _ Provider = (*Resilient)(nil)
