// Package vectorstore provides document and chunk storage with vector
// similarity search across pluggable backends.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorage wraps backend failures.
	ErrStorage = errors.New("storage error")

	// ErrEmptyChunks indicates a chunk replacement with no chunks.
	ErrEmptyChunks = errors.New("no chunks to store")

	// ErrDimensionMismatch indicates a chunk embedding whose length does not
	// match the store's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Store persists documents and their embedded chunks and serves similarity
// queries. Implementations must make ReplaceChunks all-or-nothing: a failed
// replacement leaves the document's previous chunks intact where the backend
// allows it, and never interleaves old and new chunks in query results.
type Store interface {
	// Migrate prepares backend schema or collections. Idempotent.
	Migrate(ctx context.Context) error

	// UpsertDocument inserts or fully overwrites a document row by ID.
	UpsertDocument(ctx context.Context, doc Document) error

	// GetDocument returns the document with the given ID, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// ListDocuments returns document summaries matching the filters, newest
	// first. Empty filters match everything.
	ListDocuments(ctx context.Context, filters DocumentFilters) ([]DocumentInfo, error)

	// ReplaceChunks atomically swaps the document's chunk set. Metadata on
	// each stored chunk is denormalized from doc so queries never join.
	ReplaceChunks(ctx context.Context, doc Document, chunks []Chunk) error

	// SearchChunks returns chunks similar to the query vector, most similar
	// first. Results at or below query.Floor are excluded; filters are
	// conjunctive.
	SearchChunks(ctx context.Context, vector []float32, query SearchQuery) ([]SearchResult, error)

	// DeleteDocument removes the document and all its chunks, or ErrNotFound.
	DeleteDocument(ctx context.Context, id string) error

	// Stats reports document and chunk counts.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases backend resources.
	Close() error
}
