package vectorstore

import "time"

// Document is a source teaching material. Content is retained so documents
// can be re-chunked when chunking parameters change.
type Document struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Source     string            `json:"source"`
	Subject    string            `json:"subject"`
	GradeLevel string            `json:"grade_level"`
	DocType    string            `json:"doc_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Content    string            `json:"content"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Chunk is one embedded fragment of a document. Index is the chunk's
// position within the document, starting at 0.
type Chunk struct {
	ID        string
	Index     int
	Content   string
	Embedding []float32
}

// DocumentInfo is a document summary without the full content.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Subject    string    `json:"subject"`
	GradeLevel string    `json:"grade_level"`
	DocType    string    `json:"doc_type"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DocumentFilters narrows document listings. Empty fields match everything.
type DocumentFilters struct {
	Subject    string
	GradeLevel string
}

// SearchQuery holds similarity search parameters.
type SearchQuery struct {
	// Limit caps the number of results.
	Limit int

	// Floor excludes results whose similarity is not strictly above it.
	Floor float64

	// Filters are conjunctive equality constraints on chunk metadata.
	Filters DocumentFilters
}

// SearchResult is one similarity hit with its denormalized document metadata.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Subject    string  `json:"subject"`
	GradeLevel string  `json:"grade_level"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// Stats reports store contents.
type Stats struct {
	Backend   string `json:"backend"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}
