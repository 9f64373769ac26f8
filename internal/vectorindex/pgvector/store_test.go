package pgvector

import (
	"context"
	"os"
	"testing"

	"docqa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newTestStore connects to the database named by PGVECTOR_TEST_DSN and starts from an empty table.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PGVECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_TEST_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec("DROP TABLE IF EXISTS chunk_vectors").Error)

	store, err := NewStore(db, 2)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS chunk_vectors")
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store
}

func TestNewStore_RejectsZeroDimensions(t *testing.T) {
	_, err := NewStore(nil, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpsert_LengthMismatch(t *testing.T) {
	s := &Store{dimensions: 2}
	err := s.Upsert(context.Background(), []string{"a"}, nil, []string{"x"}, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx,
		[]string{"doc_1_chunk_0", "doc_1_chunk_1", "doc_2_chunk_0"},
		[][]float32{{1, 0}, {0.7, 0.7}, {0, 1}},
		[]string{"alpha", "beta", "gamma"},
		[]models.ChunkMetadata{
			{DocumentID: 1, Title: "One", ChunkIndex: 0, TotalChunks: 2},
			{DocumentID: 1, Title: "One", ChunkIndex: 1, TotalChunks: 2},
			{DocumentID: 2, Title: "Two", ChunkIndex: 0, TotalChunks: 1},
		})
	require.NoError(t, err)

	matches, err := s.Query(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc_1_chunk_0", matches[0].ID)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-6)
	assert.Equal(t, "doc_1_chunk_1", matches[1].ID)

	docID := int64(2)
	filtered, err := s.Query(ctx, []float32{1, 0}, 5, &docID)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "gamma", filtered[0].Text)

	all, err := s.Get(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, []string{"doc_1_chunk_0", "doc_1_chunk_1", "missing"}))
	require.NoError(t, s.Delete(ctx, []string{"doc_1_chunk_0"}))

	rest, err := s.Get(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "doc_2_chunk_0", rest[0].ID)
}
