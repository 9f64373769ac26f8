package services

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRAGService(t *testing.T, docs DocumentRepository, events EventPublisher, backends ...Backend) (*RAGService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	synth := newTestSynthesizer(env, backends...)
	return NewRAGService(env.retriever, synth, docs, events, zerolog.Nop()), env
}

func TestRAGService_IngestPublishesEvents(t *testing.T) {
	events := &recordingPublisher{}
	svc, env := newTestRAGService(t, nil, events)
	ctx := context.Background()
	env.extractor.set("/docs/a.pdf", sampleText)
	env.extractor.set("/docs/blank.pdf", "   ")

	assert.True(t, svc.Ingest(ctx, 1, "/docs/a.pdf", "A"))
	assert.False(t, svc.Ingest(ctx, 2, "/docs/blank.pdf", "Blank"))

	got := events.all()
	require.Len(t, got, 2)

	assert.Equal(t, models.EventIngested, got[0].Type)
	assert.Equal(t, int64(1), got[0].DocumentID)
	assert.Equal(t, "A", got[0].Title)
	assert.Equal(t, len(env.splitter.Split(sampleText)), got[0].Chunks)
	assert.NotEmpty(t, got[0].ID)

	assert.Equal(t, models.EventIngestFailed, got[1].Type)
	assert.Equal(t, int64(2), got[1].DocumentID)
	assert.Zero(t, got[1].Chunks)
}

func TestRAGService_DeletePublishesOnlyWhenRemoved(t *testing.T) {
	events := &recordingPublisher{}
	svc, env := newTestRAGService(t, nil, events)
	ctx := context.Background()
	env.extractor.set("/docs/a.pdf", sampleText)
	require.True(t, svc.Ingest(ctx, 1, "/docs/a.pdf", "A"))

	assert.True(t, svc.Delete(ctx, 1))
	assert.False(t, svc.Delete(ctx, 1))

	got := events.all()
	require.Len(t, got, 2)
	assert.Equal(t, models.EventDeleted, got[1].Type)
	assert.Equal(t, int64(1), got[1].DocumentID)

	assert.Equal(t, 0, svc.Stats(ctx, nil).TotalChunks)
}

func TestRAGService_AskValidation(t *testing.T) {
	docs := &fakeDocuments{docs: map[int64]*models.Document{1: scienceDoc}}
	svc, _ := newTestRAGService(t, docs, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		id       int64
		question string
		wantErr  error
	}{
		{"zero id", 0, "question?", models.ErrValidation},
		{"negative id", -4, "question?", models.ErrValidation},
		{"blank question", 1, "  \t", models.ErrValidation},
		{"unknown document", 77, "question?", models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := svc.Ask(ctx, tt.id, tt.question, true)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := svc.AskDocument(ctx, nil, "question?", true)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRAGService_AskWithoutDocumentStore(t *testing.T) {
	svc, _ := newTestRAGService(t, nil, nil)

	_, err := svc.Ask(context.Background(), 1, "question?", true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRAGService_AskRepositoryError(t *testing.T) {
	dbErr := errors.New("connection reset")
	svc, _ := newTestRAGService(t, &fakeDocuments{err: dbErr}, nil)

	_, err := svc.Ask(context.Background(), 1, "question?", true)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestRAGService_Ask(t *testing.T) {
	docs := &fakeDocuments{docs: map[int64]*models.Document{1: scienceDoc}}
	svc, env := newTestRAGService(t, docs, nil, &fakeBackend{name: "ollama:llama3.2", answer: "42"})
	ctx := context.Background()
	env.extractor.set(scienceDoc.FilePath, sampleText)
	require.True(t, svc.Ingest(ctx, 1, scienceDoc.FilePath, scienceDoc.Title))

	rec, err := svc.Ask(ctx, 1, "  What do volcanoes do?  ", true)

	require.NoError(t, err)
	assert.Equal(t, "42", rec.Answer)
	assert.Equal(t, "What do volcanoes do?", rec.Question)
	assert.Equal(t, "ollama:llama3.2", rec.Backend)
	assert.True(t, rec.SemanticSearchUsed)
	assert.Equal(t, []string{"ollama:llama3.2", "heuristic"}, svc.BackendNames())
}
