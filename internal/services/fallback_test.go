package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallbackChain_EndsWithHeuristic(t *testing.T) {
	m := metrics.New()

	empty := NewFallbackChain(nil, 0, m, zerolog.Nop())
	assert.Equal(t, []string{"heuristic"}, empty.Names())
	assert.Equal(t, DefaultAttemptTimeout, empty.timeout)

	chain := NewFallbackChain([]Backend{&fakeBackend{name: "a"}, nil, &fakeBackend{name: "b"}}, time.Second, m, zerolog.Nop())
	assert.Equal(t, []string{"a", "b", "heuristic"}, chain.Names())

	explicit := NewFallbackChain([]Backend{&fakeBackend{name: "a"}, NewHeuristicBackend()}, time.Second, m, zerolog.Nop())
	assert.Equal(t, []string{"a", "heuristic"}, explicit.Names())
}

func TestFallbackChain_FirstSuccessWins(t *testing.T) {
	primary := &fakeBackend{name: "primary", answer: "  The answer is 42.  "}
	secondary := &fakeBackend{name: "secondary", answer: "unused"}
	chain := NewFallbackChain([]Backend{primary, secondary}, time.Second, metrics.New(), zerolog.Nop())

	answer, backend, err := chain.Generate(context.Background(), models.GenerationRequest{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", answer)
	assert.Equal(t, "primary", backend)
	assert.Equal(t, int32(0), secondary.calls.Load())
}

func TestFallbackChain_TimeoutFallsThrough(t *testing.T) {
	m := metrics.New()
	slow := &fakeBackend{name: "slow", block: true}
	fast := &fakeBackend{name: "fast", answer: "42"}
	chain := NewFallbackChain([]Backend{slow, fast}, 50*time.Millisecond, m, zerolog.Nop())

	start := time.Now()
	answer, backend, err := chain.Generate(context.Background(), models.GenerationRequest{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "42", answer)
	assert.Equal(t, "fast", backend)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), slow.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendFailuresTotal.WithLabelValues("slow", "timeout")))
}

func TestFallbackChain_EmptyAndErrorsCountAsFailures(t *testing.T) {
	m := metrics.New()
	chain := NewFallbackChain([]Backend{
		&fakeBackend{name: "down", err: errors.New("connection refused")},
		&fakeBackend{name: "blank", answer: " \n "},
		&fakeBackend{name: "ok", answer: "fine"},
	}, time.Second, m, zerolog.Nop())

	answer, backend, err := chain.Generate(context.Background(), models.GenerationRequest{})

	require.NoError(t, err)
	assert.Equal(t, "fine", answer)
	assert.Equal(t, "ok", backend)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendFailuresTotal.WithLabelValues("down", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendFailuresTotal.WithLabelValues("blank", "empty")))
}

func TestFallbackChain_HeuristicWhenAllModelsFail(t *testing.T) {
	chain := NewFallbackChain([]Backend{
		&fakeBackend{name: "a", err: errors.New("502")},
		&fakeBackend{name: "b", block: true},
	}, 20*time.Millisecond, metrics.New(), zerolog.Nop())

	question := "What is the warranty period?"
	answer, backend, err := chain.Generate(context.Background(), models.GenerationRequest{
		Question: question,
		Context:  "",
	})

	require.NoError(t, err)
	assert.Equal(t, "heuristic", backend)
	assert.Equal(t, `I could not find information relevant to your question "What is the warranty period?" in this document.`, answer)
}

func TestFallbackChain_TotalFailure(t *testing.T) {
	chain := &FallbackChain{
		backends: []Backend{
			&fakeBackend{name: "a", err: errors.New("down")},
			&fakeBackend{name: "b", answer: ""},
		},
		timeout: time.Second,
		metrics: metrics.New(),
		log:     zerolog.Nop(),
	}

	_, _, err := chain.Generate(context.Background(), models.GenerationRequest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.NotErrorIs(t, err, models.ErrBackendUnavailable)
}
