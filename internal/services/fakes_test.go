package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docqa/internal/chunker"
	"docqa/internal/embedding/local"
	"docqa/internal/metrics"
	"docqa/internal/models"
	"docqa/internal/vectorindex/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeExtractor serves document text from memory, keyed by path
type fakeExtractor struct {
	mu    sync.Mutex
	texts map[string]string
	err   error
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{texts: make(map[string]string)}
}

func (f *fakeExtractor) set(path, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[path] = text
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.texts[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return text, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}
func (failingEmbedder) Dimensions() int  { return 8 }
func (failingEmbedder) ModelName() string { return "failing" }

// faultyIndex wraps a real index and fails selected operations
type faultyIndex struct {
	VectorIndex
	queryErr  error
	getErr    error
	upsertErr error
	deleteErr error
}

func (f *faultyIndex) Query(ctx context.Context, v []float32, k int, id *int64) ([]models.IndexMatch, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.VectorIndex.Query(ctx, v, k, id)
}

func (f *faultyIndex) Get(ctx context.Context, id *int64) ([]models.IndexEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.VectorIndex.Get(ctx, id)
}

func (f *faultyIndex) Upsert(ctx context.Context, ids []string, vs [][]float32, ts []string, ms []models.ChunkMetadata) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.VectorIndex.Upsert(ctx, ids, vs, ts, ms)
}

func (f *faultyIndex) Delete(ctx context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.VectorIndex.Delete(ctx, ids)
}

// overlapIndex wraps a real index and records whether two mutating calls
// ever ran at the same time
type overlapIndex struct {
	VectorIndex
	active   atomic.Int32
	overlaps atomic.Int32
}

func (o *overlapIndex) enter() func() {
	if o.active.Add(1) > 1 {
		o.overlaps.Add(1)
	}
	time.Sleep(time.Millisecond)
	return func() { o.active.Add(-1) }
}

func (o *overlapIndex) Get(ctx context.Context, id *int64) ([]models.IndexEntry, error) {
	defer o.enter()()
	return o.VectorIndex.Get(ctx, id)
}

func (o *overlapIndex) Upsert(ctx context.Context, ids []string, vs [][]float32, ts []string, ms []models.ChunkMetadata) error {
	defer o.enter()()
	return o.VectorIndex.Upsert(ctx, ids, vs, ts, ms)
}

func (o *overlapIndex) Delete(ctx context.Context, ids []string) error {
	defer o.enter()()
	return o.VectorIndex.Delete(ctx, ids)
}

// fakeBackend answers, fails, or blocks until its context expires
type fakeBackend struct {
	name   string
	answer string
	err    error
	block  bool
	calls  atomic.Int32
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Generate(ctx context.Context, _ models.GenerationRequest) (string, error) {
	b.calls.Add(1)
	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return b.answer, b.err
}

// fakeDocuments is an in-memory DocumentRepository
type fakeDocuments struct {
	docs map[int64]*models.Document
	err  error
}

func (f *fakeDocuments) GetByID(_ context.Context, id int64) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.Join(models.ErrNotFound, errors.New("document not found"))
	}
	return doc, nil
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.IndexEvent
}

func (p *recordingPublisher) Publish(e models.IndexEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) all() []models.IndexEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.IndexEvent(nil), p.events...)
}

// testEnv wires a retriever over a real SQLite index and the local embedder
type testEnv struct {
	extractor *fakeExtractor
	splitter  *chunker.Chunker
	index     *sqlite.Store
	metrics   *metrics.Metrics
	retriever *Retriever
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	embedder := local.New(64)
	store, err := sqlite.NewStore(t.TempDir(), embedder.ModelName(), embedder.Dimensions())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		extractor: newFakeExtractor(),
		splitter:  chunker.New(chunker.WithChunkSize(80), chunker.WithOverlap(10)),
		index:     store,
		metrics:   metrics.New(),
	}
	env.retriever = NewRetriever(env.extractor, env.splitter, embedder, store, env.metrics, zerolog.Nop())
	return env
}

const sampleText = `Photosynthesis converts sunlight into chemical energy inside plant leaves.
The mitochondria is the powerhouse of the cell and produces most of its ATP.
Volcanoes erupt when pressure from molten magma builds beneath the crust.
Glaciers carve deep valleys over thousands of years of slow movement.`

func int64Ptr(v int64) *int64 { return &v }
