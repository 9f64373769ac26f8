package models

// Source is the provenance of one retrieved passage used to answer a question
type Source struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Preview    string  `json:"preview"`
}

// AnswerRecord is returned to the caller of Ask
type AnswerRecord struct {
	Answer             string   `json:"answer"`
	Question           string   `json:"question"`
	DocumentID         int64    `json:"document_id"`
	DocumentTitle      string   `json:"document_title"`
	Sources            []Source `json:"sources"`
	SemanticSearchUsed bool     `json:"semantic_search_used"`
	Backend            string   `json:"backend"`
	ProcessingTime     float64  `json:"processing_time"` // seconds
}

// DocumentSummary is one row of the aggregate statistics
type DocumentSummary struct {
	DocumentID int64  `json:"document_id"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
}

// StatsRecord describes the index contents.
// With a document filter only DocumentID, TotalChunks and Chunks are populated;
// without one, TotalDocuments, TotalChunks and Documents are.
type StatsRecord struct {
	DocumentID     *int64            `json:"document_id,omitempty"`
	TotalDocuments int               `json:"total_documents"`
	TotalChunks    int               `json:"total_chunks"`
	Chunks         []ChunkMetadata   `json:"chunks,omitempty"`
	Documents      []DocumentSummary `json:"documents,omitempty"`
}

// GenerationRequest is what every fallback-chain backend receives.
// Model backends send Prompt; the offline heuristic works from Question and Context.
type GenerationRequest struct {
	Title    string
	Question string
	Context  string
	Prompt   string
}
