package models

import "fmt"

// ChunkID builds the deterministic vector id for a chunk: doc_<id>_chunk_<i>.
// Re-ingesting a document produces the same ids, so entries are overwritten rather than duplicated.
func ChunkID(documentID int64, chunkIndex int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, chunkIndex)
}

// ChunkMetadata is stored alongside every indexed vector
type ChunkMetadata struct {
	DocumentID  int64  `json:"document_id"`
	Title       string `json:"title"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// IndexEntry is a persisted (id, text, metadata) triple without its vector
type IndexEntry struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// IndexMatch is an entry returned by a nearest-neighbour query.
// Distance is the cosine distance to the query vector; smaller is closer.
type IndexMatch struct {
	IndexEntry
	Distance float64 `json:"distance"`
}

// SearchResult represents a semantic search hit
type SearchResult struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"` // 1 - cosine distance, in [-1, 1]
}
