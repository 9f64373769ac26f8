// Package sqlite implements the vector index on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"docqa/internal/models"
	"docqa/internal/vectorindex/sqlite/migrations"
)

const (
	metaModel      = "embedding_model"
	metaDimensions = "dimensions"
)

// Store persists chunk vectors, texts and metadata in <dir>/index.db.
type Store struct {
	db   *sql.DB
	path string
	dims int
}

// NewStore opens (or creates) the index under dataDir and applies pending migrations.
// The first open records model and dimensions; later opens with a different
// embedder fail with models.ErrIndexMismatch.
func NewStore(dataDir, model string, dimensions int) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if model == "" || dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding model and dimensions are required", models.ErrValidation)
	}
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("registering vector functions: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "index.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath, dims: dimensions}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.bindEmbedder(model, dimensions); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// bindEmbedder records the embedding space on first use and rejects a different one afterwards.
// Indexes created before index_meta existed are checked against their stored vector widths.
func (s *Store) bindEmbedder(model string, dimensions int) error {
	recorded := map[string]string{}
	rows, err := s.db.Query("SELECT key, value FROM index_meta")
	if err != nil {
		return fmt.Errorf("reading index metadata: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return fmt.Errorf("scanning index metadata: %w", err)
		}
		recorded[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating index metadata: %w", err)
	}

	if m, ok := recorded[metaModel]; ok && m != model {
		return fmt.Errorf("%w: index uses %q, embedder is %q", models.ErrIndexMismatch, m, model)
	}
	if d, ok := recorded[metaDimensions]; ok && d != strconv.Itoa(dimensions) {
		return fmt.Errorf("%w: index holds %s-dimensional vectors, embedder produces %d",
			models.ErrIndexMismatch, d, dimensions)
	}
	if len(recorded) > 0 {
		return nil
	}

	var stored sql.NullInt64
	if err := s.db.QueryRow("SELECT dimensions FROM vectors WHERE dimensions != ? LIMIT 1", dimensions).
		Scan(&stored); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("checking stored dimensions: %w", err)
	}
	if stored.Valid {
		return fmt.Errorf("%w: index holds %d-dimensional vectors, embedder produces %d",
			models.ErrIndexMismatch, stored.Int64, dimensions)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning index metadata: %w", err)
	}
	defer tx.Rollback()
	for k, v := range map[string]string{metaModel: model, metaDimensions: strconv.Itoa(dimensions)} {
		if _, err := tx.Exec("INSERT INTO index_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("recording index metadata: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index metadata: %w", err)
	}
	return nil
}

// Dimensions returns the vector width the index was opened with.
func (s *Store) Dimensions() int {
	return s.dims
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_init.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// Upsert inserts or overwrites entries by id. The four slices must line up;
// the whole batch is written in one transaction.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32, texts []string, metas []models.ChunkMetadata) error {
	if len(ids) != len(vectors) || len(ids) != len(texts) || len(ids) != len(metas) {
		return fmt.Errorf("%w: upsert lengths differ (ids=%d vectors=%d texts=%d metadata=%d)",
			models.ErrValidation, len(ids), len(vectors), len(texts), len(metas))
	}
	if len(ids) == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != s.dims {
			return fmt.Errorf("%w: vector for %s has %d dimensions, index expects %d",
				models.ErrValidation, ids[i], len(v), s.dims)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (id, document_id, title, chunk_index, total_chunks, text, embedding, dimensions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			title = excluded.title,
			chunk_index = excluded.chunk_index,
			total_chunks = excluded.total_chunks,
			text = excluded.text,
			embedding = excluded.embedding,
			dimensions = excluded.dimensions,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		m := metas[i]
		if _, err := stmt.ExecContext(ctx, id, m.DocumentID, m.Title, m.ChunkIndex, m.TotalChunks,
			texts[i], encodeEmbedding(vectors[i]), len(vectors[i])); err != nil {
			return fmt.Errorf("upserting %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// Query returns up to k entries closest to vector by cosine distance, optionally
// restricted to one document.
func (s *Store) Query(ctx context.Context, vector []float32, k int, documentID *int64) ([]models.IndexMatch, error) {
	if k <= 0 {
		return []models.IndexMatch{}, nil
	}

	query := `SELECT id, document_id, title, chunk_index, total_chunks, text,
			` + cosineDistanceFunc + `(embedding, ?) AS distance
		FROM vectors`
	args := []any{encodeEmbedding(vector)}
	if documentID != nil {
		query += " WHERE document_id = ?"
		args = append(args, *documentID)
	}
	query += " ORDER BY distance ASC, document_id ASC, chunk_index ASC LIMIT ?"
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	matches := []models.IndexMatch{}
	for rows.Next() {
		var m models.IndexMatch
		var distance sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Metadata.DocumentID, &m.Metadata.Title, &m.Metadata.ChunkIndex,
			&m.Metadata.TotalChunks, &m.Text, &distance); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.Distance = 1
		if distance.Valid {
			m.Distance = distance.Float64
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// Get returns every entry, or one document's entries, ordered by document id and chunk index.
func (s *Store) Get(ctx context.Context, documentID *int64) ([]models.IndexEntry, error) {
	query := "SELECT id, document_id, title, chunk_index, total_chunks, text FROM vectors"
	var args []any
	if documentID != nil {
		query += " WHERE document_id = ?"
		args = append(args, *documentID)
	}
	query += " ORDER BY document_id ASC, chunk_index ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing vectors: %w", err)
	}
	defer rows.Close()

	entries := []models.IndexEntry{}
	for rows.Next() {
		var e models.IndexEntry
		if err := rows.Scan(&e.ID, &e.Metadata.DocumentID, &e.Metadata.Title, &e.Metadata.ChunkIndex,
			&e.Metadata.TotalChunks, &e.Text); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Delete removes the given ids. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM vectors WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}
