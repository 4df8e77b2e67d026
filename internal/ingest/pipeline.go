// Package ingest turns raw documents into stored, searchable chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/chunker"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// ErrValidation indicates input rejected before any remote call.
var ErrValidation = errors.New("validation failed")

// minContentLength is the shortest content accepted for ingestion. Anything
// shorter carries too little signal to be worth an embedding call.
const minContentLength = 50

// Embedder generates embedding vectors for texts.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// IngestRequest describes a document to ingest.
type IngestRequest struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Source     string            `json:"source"`
	Subject    string            `json:"subject"`
	GradeLevel string            `json:"grade_level"`
	DocType    string            `json:"doc_type"`
	Metadata   map[string]string `json:"metadata"`
}

// IngestResult reports a stored document.
type IngestResult struct {
	DocumentID    string `json:"document_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// BulkItem is one entry in a bulk ingestion ledger.
type BulkItem struct {
	Index         int    `json:"index"`
	Title         string `json:"title"`
	DocumentID    string `json:"document_id,omitempty"`
	ChunksCreated int    `json:"chunks_created,omitempty"`
	Error         string `json:"error,omitempty"`
}

// BulkResult is the outcome of a bulk ingestion.
type BulkResult struct {
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Items      []BulkItem `json:"items"`
}

// UpdateRequest carries partial document changes. Nil fields are untouched.
type UpdateRequest struct {
	Title    *string            `json:"title"`
	Content  *string            `json:"content"`
	Metadata *map[string]string `json:"metadata"`
}

// UpdateResult reports whether the update re-embedded content.
type UpdateResult struct {
	DocumentID     string `json:"document_id"`
	ContentUpdated bool   `json:"content_updated"`
	ChunksCreated  int    `json:"chunks_created,omitempty"`
}

// Pipeline composes the chunker, embedder, and store. Ingestion is
// at-least-once per distinct content: re-ingesting the same text creates a
// new document rather than deduplicating.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder Embedder
	store    vectorstore.Store
	logger   *zap.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(c *chunker.Chunker, embedder Embedder, store vectorstore.Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{chunker: c, embedder: embedder, store: store, logger: logger}
}

// Ingest validates, chunks, embeds, and stores one document. Embedding
// happens before any store write, so embedding failures leave the store
// untouched.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := vectorstore.Document{
		ID:         uuid.New().String(),
		Title:      strings.TrimSpace(req.Title),
		Source:     req.Source,
		Subject:    req.Subject,
		GradeLevel: req.GradeLevel,
		DocType:    req.DocType,
		Metadata:   req.Metadata,
		Content:    chunker.Normalize(req.Content),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	chunks, err := p.embedChunks(ctx, doc.Content)
	if err != nil {
		return nil, err
	}

	if err := p.store.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := p.store.ReplaceChunks(ctx, doc, chunks); err != nil {
		return nil, err
	}

	p.logger.Info("ingested document",
		zap.String("document_id", doc.ID),
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
	)
	return &IngestResult{DocumentID: doc.ID, ChunksCreated: len(chunks)}, nil
}

// BulkIngest processes documents independently. One document's failure is
// recorded in the ledger and never aborts the batch.
func (p *Pipeline) BulkIngest(ctx context.Context, reqs []IngestRequest) *BulkResult {
	result := &BulkResult{Items: make([]BulkItem, 0, len(reqs))}
	for i, req := range reqs {
		item := BulkItem{Index: i, Title: req.Title}

		ingested, err := p.Ingest(ctx, req)
		if err != nil {
			item.Error = err.Error()
			result.Failed++
			p.logger.Warn("bulk ingest item failed",
				zap.Int("index", i),
				zap.String("title", req.Title),
				zap.Error(err),
			)
		} else {
			item.DocumentID = ingested.DocumentID
			item.ChunksCreated = ingested.ChunksCreated
			result.Successful++
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// Update applies partial changes to a document. A content change re-chunks
// and re-embeds before any store write; if embedding fails, the previous
// chunk set stays intact. The new chunk set lands before the document row so
// a chunk replacement failure leaves the stored content unchanged and a
// retried update still sees the old content and re-embeds. Title and
// metadata changes touch only the document row — the chunk metadata snapshot
// refreshes on the next content update.
func (p *Pipeline) Update(ctx context.Context, id string, req UpdateRequest) (*UpdateResult, error) {
	doc, err := p.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		doc.Title = title
	}
	if req.Metadata != nil {
		doc.Metadata = *req.Metadata
	}

	contentUpdated := false
	var chunks []vectorstore.Chunk
	if req.Content != nil {
		content := chunker.Normalize(*req.Content)
		if len(content) < minContentLength {
			return nil, fmt.Errorf("%w: content must be at least %d characters", ErrValidation, minContentLength)
		}
		if content != doc.Content {
			chunks, err = p.embedChunks(ctx, content)
			if err != nil {
				return nil, err
			}
			doc.Content = content
			contentUpdated = true
		}
	}

	doc.UpdatedAt = time.Now().UTC()
	if contentUpdated {
		if err := p.store.ReplaceChunks(ctx, *doc, chunks); err != nil {
			return nil, err
		}
	}
	if err := p.store.UpsertDocument(ctx, *doc); err != nil {
		return nil, err
	}

	p.logger.Info("updated document",
		zap.String("document_id", id),
		zap.Bool("content_updated", contentUpdated),
	)
	return &UpdateResult{
		DocumentID:     id,
		ContentUpdated: contentUpdated,
		ChunksCreated:  len(chunks),
	}, nil
}

// Delete removes a document and its chunks.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	if err := p.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	p.logger.Info("deleted document", zap.String("document_id", id))
	return nil
}

// embedChunks splits normalized content and embeds every piece.
func (p *Pipeline) embedChunks(ctx context.Context, content string) ([]vectorstore.Chunk, error) {
	pieces := p.chunker.Split(content)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: content produced no chunks", ErrValidation)
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vectorstore.Chunk{
			ID:        uuid.New().String(),
			Index:     i,
			Content:   piece,
			Embedding: vectors[i],
		}
	}
	return chunks, nil
}

// validate rejects malformed input before any remote call.
func validate(req IngestRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	content := chunker.Normalize(req.Content)
	if len(content) < minContentLength {
		return fmt.Errorf("%w: content must be at least %d characters", ErrValidation, minContentLength)
	}
	return nil
}
