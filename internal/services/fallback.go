package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultAttemptTimeout bounds a single backend attempt
const DefaultAttemptTimeout = 30 * time.Second

// FallbackChain tries each backend in order until one returns a non-empty answer.
// The last item is always the offline heuristic, so the chain only fails when
// even that produces nothing.
type FallbackChain struct {
	backends []Backend
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewFallbackChain builds a chain from the configured backends, appending the
// heuristic when the list does not already end with it.
func NewFallbackChain(backends []Backend, attemptTimeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *FallbackChain {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	chain := make([]Backend, 0, len(backends)+1)
	for _, b := range backends {
		if b != nil {
			chain = append(chain, b)
		}
	}
	if n := len(chain); n == 0 || !isHeuristic(chain[n-1]) {
		chain = append(chain, NewHeuristicBackend())
	}

	return &FallbackChain{
		backends: chain,
		timeout:  attemptTimeout,
		metrics:  m,
		log:      log,
	}
}

// Names lists the backends in the order they are tried
func (c *FallbackChain) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Generate returns the first non-empty answer and the name of the backend that produced it.
// Exhausting the chain returns an error wrapping models.ErrServiceUnavailable.
func (c *FallbackChain) Generate(ctx context.Context, req models.GenerationRequest) (string, string, error) {
	ctx, span := middleware.StartSpan(ctx, "FallbackChain.Generate",
		attribute.Int("chain.length", len(c.backends)),
	)
	defer span.End()

	var lastErr error
	for i, b := range c.backends {
		answer, err := c.attempt(ctx, b, req)
		if err == nil {
			span.SetAttributes(
				attribute.String("chain.backend", b.Name()),
				attribute.Int("chain.attempts", i+1),
			)
			return answer, b.Name(), nil
		}

		lastErr = err
		c.log.Warn().
			Err(err).
			Str("backend", b.Name()).
			Int("attempt", i+1).
			Msg("Backend failed, falling back")
	}

	err := fmt.Errorf("%w: all %d backends failed: %v", models.ErrServiceUnavailable, len(c.backends), lastErr)
	middleware.AddSpanError(ctx, err)
	return "", "", err
}

func (c *FallbackChain) attempt(ctx context.Context, b Backend, req models.GenerationRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	answer, err := b.Generate(attemptCtx, req)
	elapsed := time.Since(start)

	reason := ""
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded)):
		reason = "timeout"
	case err != nil:
		reason = "error"
	case strings.TrimSpace(answer) == "":
		reason = "empty"
		err = errors.New("empty response")
	}
	c.metrics.RecordBackendAttempt(b.Name(), reason, elapsed)

	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrBackendUnavailable, b.Name(), err)
	}
	return strings.TrimSpace(answer), nil
}

func isHeuristic(b Backend) bool {
	_, ok := b.(*HeuristicBackend)
	return ok
}
