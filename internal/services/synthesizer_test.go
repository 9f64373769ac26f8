package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"docqa/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingBackend records the last request it was given
type capturingBackend struct {
	mu     sync.Mutex
	answer string
	last   models.GenerationRequest
}

func (b *capturingBackend) Name() string { return "capture" }

func (b *capturingBackend) Generate(_ context.Context, req models.GenerationRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = req
	return b.answer, nil
}

func (b *capturingBackend) request() models.GenerationRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func newTestSynthesizer(env *testEnv, backends ...Backend) *Synthesizer {
	chain := NewFallbackChain(backends, time.Second, env.metrics, zerolog.Nop())
	return NewSynthesizer(env.retriever, env.extractor, chain, 3, env.metrics, zerolog.Nop())
}

var scienceDoc = &models.Document{ID: 1, Title: "Science", FilePath: "/docs/science.pdf"}

func TestSynthesizer_SemanticContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.extractor.set(scienceDoc.FilePath, sampleText)
	require.True(t, env.retriever.AddDocument(ctx, scienceDoc.ID, scienceDoc.FilePath, scienceDoc.Title))

	backend := &capturingBackend{answer: "Plants use photosynthesis."}
	s := newTestSynthesizer(env, backend)

	rec, err := s.Answer(ctx, scienceDoc, "How does photosynthesis use sunlight?", true)
	require.NoError(t, err)

	assert.Equal(t, "Plants use photosynthesis.", rec.Answer)
	assert.Equal(t, "How does photosynthesis use sunlight?", rec.Question)
	assert.Equal(t, int64(1), rec.DocumentID)
	assert.Equal(t, "Science", rec.DocumentTitle)
	assert.Equal(t, "capture", rec.Backend)
	assert.True(t, rec.SemanticSearchUsed)
	assert.GreaterOrEqual(t, rec.ProcessingTime, 0.0)

	require.NotEmpty(t, rec.Sources)
	assert.LessOrEqual(t, len(rec.Sources), 3)
	for _, src := range rec.Sources {
		assert.True(t, strings.HasPrefix(src.ID, "doc_1_chunk_"))
		assert.Equal(t, roundTo(src.Similarity, 3), src.Similarity)
		assert.LessOrEqual(t, utf8.RuneCountInString(src.Preview), previewRunes)
	}

	req := backend.request()
	assert.Equal(t, "Science", req.Title)
	assert.Contains(t, req.Context, "Photosynthesis converts sunlight")
	assert.Contains(t, req.Prompt, req.Context)
	assert.Contains(t, req.Prompt, "Question: How does photosynthesis use sunlight?")
	assert.Contains(t, req.Prompt, `"Science"`)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AnswersTotal.WithLabelValues("capture")))
}

func TestSynthesizer_FullTextContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.extractor.set(scienceDoc.FilePath, "\n  "+sampleText+"\n\n")

	t.Run("semantic search disabled", func(t *testing.T) {
		backend := &capturingBackend{answer: "ok"}
		rec, err := newTestSynthesizer(env, backend).Answer(ctx, scienceDoc, "volcanoes?", false)
		require.NoError(t, err)

		assert.False(t, rec.SemanticSearchUsed)
		assert.NotNil(t, rec.Sources)
		assert.Empty(t, rec.Sources)
		assert.Equal(t, sampleText, backend.request().Context)
	})

	t.Run("no indexed chunks", func(t *testing.T) {
		backend := &capturingBackend{answer: "ok"}
		rec, err := newTestSynthesizer(env, backend).Answer(ctx, scienceDoc, "volcanoes?", true)
		require.NoError(t, err)

		assert.False(t, rec.SemanticSearchUsed)
		assert.Empty(t, rec.Sources)
		assert.Equal(t, sampleText, backend.request().Context)
	})
}

func TestSynthesizer_HeuristicOnlyWithUnreadableDocument(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.err = errors.New("corrupt pdf")

	s := newTestSynthesizer(env, &fakeBackend{name: "down", err: errors.New("refused")})
	rec, err := s.Answer(context.Background(), scienceDoc, "What is inside?", true)

	require.NoError(t, err)
	assert.Equal(t, "heuristic", rec.Backend)
	assert.Equal(t, `I could not find information relevant to your question "What is inside?" in this document.`, rec.Answer)
	assert.False(t, rec.SemanticSearchUsed)
}

func TestSynthesizer_HeuristicUsesRetrievedChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.extractor.set(scienceDoc.FilePath, sampleText)
	require.True(t, env.retriever.AddDocument(ctx, scienceDoc.ID, scienceDoc.FilePath, scienceDoc.Title))

	s := newTestSynthesizer(env, &fakeBackend{name: "slow", block: true})
	s.chain.timeout = 20 * time.Millisecond

	rec, err := s.Answer(ctx, scienceDoc, "Where do glaciers carve valleys?", true)

	require.NoError(t, err)
	assert.Equal(t, "heuristic", rec.Backend)
	assert.Contains(t, rec.Answer, "Glaciers carve deep valleys")
	assert.True(t, rec.SemanticSearchUsed)
}

func TestSynthesizer_TotalFailure(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.set(scienceDoc.FilePath, sampleText)

	s := newTestSynthesizer(env)
	s.chain = &FallbackChain{
		backends: []Backend{&fakeBackend{name: "down", err: errors.New("refused")}},
		timeout:  time.Second,
		metrics:  env.metrics,
		log:      zerolog.Nop(),
	}

	rec, err := s.Answer(context.Background(), scienceDoc, "anything", false)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestPreviewAndRounding(t *testing.T) {
	long := strings.Repeat("é", 250)
	assert.Equal(t, strings.Repeat("é", 200), preview(long, previewRunes))
	assert.Equal(t, "short", preview("short", previewRunes))

	assert.Equal(t, 0.123, roundTo(0.12345, 3))
	assert.Equal(t, 1.0, roundTo(0.99999, 3))
	assert.Equal(t, -0.5, roundTo(-0.5004, 3))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Manual", "Chunk one.\n\nChunk two.", "What is it?")

	assert.Contains(t, p, `"Manual"`)
	assert.Contains(t, p, "Use only the information in the context below")
	assert.Contains(t, p, "does not cover it")
	assert.Contains(t, p, "Context:\nChunk one.\n\nChunk two.")
	assert.True(t, strings.HasSuffix(p, "Question: What is it?\n\nAnswer:"))
}
