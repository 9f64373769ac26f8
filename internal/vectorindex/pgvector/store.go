// Package pgvector implements the vector index on PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"time"

	"docqa/internal/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// chunkVector is one row of the chunk_vectors table
type chunkVector struct {
	ID          string          `gorm:"primaryKey;type:text"`
	DocumentID  int64           `gorm:"not null;index:idx_chunk_vectors_document,priority:1"`
	Title       string          `gorm:"type:text"`
	ChunkIndex  int             `gorm:"not null;index:idx_chunk_vectors_document,priority:2"`
	TotalChunks int             `gorm:"not null"`
	Text        string          `gorm:"type:text;not null"`
	Embedding   pgvector.Vector `gorm:"type:vector"`
	UpdatedAt   time.Time
}

func (chunkVector) TableName() string {
	return "chunk_vectors"
}

// matchRow is the shape scanned from a nearest-neighbour query
type matchRow struct {
	ID          string
	DocumentID  int64
	Title       string
	ChunkIndex  int
	TotalChunks int
	Text        string
	Distance    float64
}

// Store keeps chunk vectors in PostgreSQL and ranks them with the <=> cosine-distance operator.
type Store struct {
	db         *gorm.DB
	dimensions int
}

// NewStore enables the vector extension and creates the chunk_vectors table for
// vectors of the given dimension.
func NewStore(db *gorm.DB, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrValidation)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	// The column type carries the dimension, which a struct tag cannot express.
	err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunk_vectors (
			id           TEXT PRIMARY KEY,
			document_id  BIGINT NOT NULL,
			title        TEXT,
			chunk_index  BIGINT NOT NULL,
			total_chunks BIGINT NOT NULL,
			text         TEXT NOT NULL,
			embedding    vector(%d),
			updated_at   TIMESTAMPTZ
		)`, dimensions)).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk_vectors table: %w", err)
	}

	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document
		ON chunk_vectors (document_id, chunk_index)
	`).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create document index: %w", err)
	}

	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunk_vectors_embedding
		ON chunk_vectors USING hnsw (embedding vector_cosine_ops)
	`).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	return &Store{db: db, dimensions: dimensions}, nil
}

// Upsert inserts or overwrites entries by id in a single transaction.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32, texts []string, metas []models.ChunkMetadata) error {
	if len(ids) != len(vectors) || len(ids) != len(texts) || len(ids) != len(metas) {
		return fmt.Errorf("%w: upsert lengths differ (ids=%d vectors=%d texts=%d metadata=%d)",
			models.ErrValidation, len(ids), len(vectors), len(texts), len(metas))
	}
	if len(ids) == 0 {
		return nil
	}

	rows := make([]chunkVector, len(ids))
	for i, id := range ids {
		rows[i] = chunkVector{
			ID:          id,
			DocumentID:  metas[i].DocumentID,
			Title:       metas[i].Title,
			ChunkIndex:  metas[i].ChunkIndex,
			TotalChunks: metas[i].TotalChunks,
			Text:        texts[i],
			Embedding:   pgvector.NewVector(vectors[i]),
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

// Query returns up to k nearest entries by cosine distance.
// Lower distance = more similar.
func (s *Store) Query(ctx context.Context, vector []float32, k int, documentID *int64) ([]models.IndexMatch, error) {
	if k <= 0 {
		return []models.IndexMatch{}, nil
	}

	vec := pgvector.NewVector(vector)

	q := s.db.WithContext(ctx).
		Table("chunk_vectors").
		Select("id, document_id, title, chunk_index, total_chunks, text, embedding <=> ? AS distance", vec)
	if documentID != nil {
		q = q.Where("document_id = ?", *documentID)
	}

	var rows []matchRow
	err := q.Order("distance ASC, document_id ASC, chunk_index ASC").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to perform semantic search: %w", err)
	}

	matches := make([]models.IndexMatch, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, models.IndexMatch{
			IndexEntry: models.IndexEntry{
				ID:   r.ID,
				Text: r.Text,
				Metadata: models.ChunkMetadata{
					DocumentID:  r.DocumentID,
					Title:       r.Title,
					ChunkIndex:  r.ChunkIndex,
					TotalChunks: r.TotalChunks,
				},
			},
			Distance: r.Distance,
		})
	}
	return matches, nil
}

// Get returns all entries, or one document's, ordered by document id and chunk index.
func (s *Store) Get(ctx context.Context, documentID *int64) ([]models.IndexEntry, error) {
	var rows []chunkVector

	q := s.db.WithContext(ctx).Omit("embedding")
	if documentID != nil {
		q = q.Where("document_id = ?", *documentID)
	}
	if err := q.Order("document_id, chunk_index").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get vectors: %w", err)
	}

	entries := make([]models.IndexEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.IndexEntry{
			ID:   r.ID,
			Text: r.Text,
			Metadata: models.ChunkMetadata{
				DocumentID:  r.DocumentID,
				Title:       r.Title,
				ChunkIndex:  r.ChunkIndex,
				TotalChunks: r.TotalChunks,
			},
		})
	}
	return entries, nil
}

// Delete removes the given ids; unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("id IN ?", ids).Delete(&chunkVector{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// Close is a no-op: the *gorm.DB is shared with the document repository and closed by its owner.
func (s *Store) Close() error {
	return nil
}
