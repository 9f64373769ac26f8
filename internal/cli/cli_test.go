package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"docqa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCore struct {
	ingestOK  bool
	ingested  []string
	asked     *models.Document
	semantic  bool
	askErr    error
	removed   map[int64]bool
	opened    int
	closed    int
	chunks    int
	statsArgs []*int64
}

func newFakeCore() *fakeCore {
	return &fakeCore{ingestOK: true, removed: map[int64]bool{}, chunks: 4}
}

func (f *fakeCore) Ingest(_ context.Context, id int64, path, title string) bool {
	f.ingested = append(f.ingested, fmt.Sprintf("%d|%s|%s", id, path, title))
	return f.ingestOK
}

func (f *fakeCore) AskDocument(_ context.Context, doc *models.Document, question string, semantic bool) (*models.AnswerRecord, error) {
	f.asked = doc
	f.semantic = semantic
	if f.askErr != nil {
		return nil, f.askErr
	}
	record := &models.AnswerRecord{
		Answer:             "Plants use sunlight.",
		Question:           question,
		DocumentID:         doc.ID,
		DocumentTitle:      doc.Title,
		Backend:            "heuristic",
		SemanticSearchUsed: semantic,
		Sources:            []models.Source{},
	}
	if semantic {
		record.Sources = []models.Source{{ID: models.ChunkID(doc.ID, 0), Similarity: 0.344, Preview: "Photosynthesis\nconverts"}}
	}
	return record, nil
}

func (f *fakeCore) Delete(_ context.Context, id int64) bool {
	return f.removed[id]
}

func (f *fakeCore) Stats(_ context.Context, id *int64) models.StatsRecord {
	f.statsArgs = append(f.statsArgs, id)
	if id != nil {
		return models.StatsRecord{DocumentID: id, TotalDocuments: 1, TotalChunks: f.chunks}
	}
	return models.StatsRecord{
		TotalDocuments: 1,
		TotalChunks:    f.chunks,
		Documents:      []models.DocumentSummary{{DocumentID: 7, Title: "Nature", ChunkCount: f.chunks}},
	}
}

func (f *fakeCore) opener() Opener {
	return func(context.Context) (Core, func() error, error) {
		f.opened++
		return f, func() error { f.closed++; return nil }, nil
	}
}

func execute(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(open)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestIngest(t *testing.T) {
	core := newFakeCore()

	out, err := execute(t, core.opener(), "ingest", "7", "/tmp/papers/Nature.pdf")

	require.NoError(t, err)
	assert.Equal(t, []string{"7|/tmp/papers/Nature.pdf|Nature"}, core.ingested)
	assert.Contains(t, out, "Indexed document 7 (Nature): 4 chunks")
	assert.Equal(t, 1, core.opened)
	assert.Equal(t, 1, core.closed)
}

func TestIngest_TitleFlagAndFailure(t *testing.T) {
	core := newFakeCore()
	core.ingestOK = false

	_, err := execute(t, core.opener(), "ingest", "--title", "Scanned", "3", "scan.pdf")

	assert.ErrorContains(t, err, "could not be indexed")
	assert.Equal(t, []string{"3|scan.pdf|Scanned"}, core.ingested)
	assert.Equal(t, 1, core.closed)
}

func TestIngest_ArgumentErrors(t *testing.T) {
	core := newFakeCore()

	_, err := execute(t, core.opener(), "ingest", "7")
	assert.ErrorContains(t, err, "accepts 2 arg(s)")

	_, err = execute(t, core.opener(), "ingest", "seven", "a.pdf")
	assert.ErrorContains(t, err, "invalid document id")

	_, err = execute(t, core.opener(), "ingest", "0", "a.pdf")
	assert.ErrorContains(t, err, "positive integer")

	assert.Zero(t, core.opened)
}

func TestAsk(t *testing.T) {
	core := newFakeCore()

	out, err := execute(t, core.opener(), "ask", "7", "How do plants eat?", "--file", "docs/Nature.pdf")

	require.NoError(t, err)
	require.NotNil(t, core.asked)
	assert.Equal(t, int64(7), core.asked.ID)
	assert.Equal(t, "Nature", core.asked.Title)
	assert.Equal(t, "docs/Nature.pdf", core.asked.FilePath)
	assert.True(t, core.semantic)

	assert.Contains(t, out, "Plants use sunlight.")
	assert.Contains(t, out, "Backend: heuristic")
	assert.Contains(t, out, "[1] doc_7_chunk_0 (0.344)")
	assert.Contains(t, out, "Photosynthesis converts")
}

func TestAsk_NoSemanticJSON(t *testing.T) {
	core := newFakeCore()

	out, err := execute(t, core.opener(), "ask", "7", "q", "-f", "a.pdf", "--no-semantic", "--json")

	require.NoError(t, err)
	assert.False(t, core.semantic)
	assert.Contains(t, out, `"semantic_search_used": false`)
	assert.Contains(t, out, `"backend": "heuristic"`)
}

func TestAsk_RequiresFile(t *testing.T) {
	core := newFakeCore()

	_, err := execute(t, core.opener(), "ask", "7", "q")

	assert.ErrorContains(t, err, `required flag(s) "file" not set`)
	assert.Zero(t, core.opened)
}

func TestAsk_ServiceUnavailable(t *testing.T) {
	core := newFakeCore()
	core.askErr = fmt.Errorf("all backends failed: %w", models.ErrServiceUnavailable)

	_, err := execute(t, core.opener(), "ask", "7", "q", "-f", "a.pdf")

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrServiceUnavailable))
}

func TestStats(t *testing.T) {
	core := newFakeCore()

	out, err := execute(t, core.opener(), "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 1")
	assert.Contains(t, out, "[7] Nature (4 chunks)")

	out, err = execute(t, core.opener(), "stats", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Document 7: 4 chunks")

	require.Len(t, core.statsArgs, 2)
	assert.Nil(t, core.statsArgs[0])
	assert.Equal(t, int64(7), *core.statsArgs[1])
}

func TestDelete(t *testing.T) {
	core := newFakeCore()
	core.removed[7] = true

	out, err := execute(t, core.opener(), "delete", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed document 7")

	out, err = execute(t, core.opener(), "delete", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing indexed for document 8")
}

func TestOpenFailure(t *testing.T) {
	open := func(context.Context) (Core, func() error, error) {
		return nil, nil, errors.New("disk full")
	}

	_, err := execute(t, open, "stats")

	assert.ErrorContains(t, err, "failed to open index: disk full")
}
