package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chunkCollection is the chromem collection holding embedded chunks.
const chunkCollection = "tutord_chunks"

// documentsFile is the sidecar holding document rows. chromem-go stores only
// embedded records, so full documents live next to it as JSON.
const documentsFile = "documents.json"

// ChromemStoreConfig holds configuration for the embedded chromem-go store.
type ChromemStoreConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Dimension is the embedding vector length.
	Dimension int
}

// Validate validates the configuration.
func (c ChromemStoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store on chromem-go, an embeddable pure-Go vector
// database persisting to gob files. No external service is needed, which
// makes it the zero-setup backend for local use and tests.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemStoreConfig
	logger *zap.Logger

	// mu guards the document sidecar and its file.
	docs     map[string]Document
	counts   map[string]int
	docsPath string
	mu       sync.RWMutex
}

// sidecar is the on-disk shape of the document file.
type sidecar struct {
	Documents   map[string]Document `json:"documents"`
	ChunkCounts map[string]int      `json:"chunk_counts"`
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) the persistent database at config.Path
// and loads the document sidecar.
func NewChromemStore(config ChromemStoreConfig, logger *zap.Logger) (*ChromemStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating directory %s: %v", ErrStorage, path, err)
	}

	db, err := chromem.NewPersistentDB(filepath.Join(path, "chunks"), config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrStorage, err)
	}

	store := &ChromemStore{
		db:       db,
		config:   config,
		logger:   logger,
		docs:     make(map[string]Document),
		counts:   make(map[string]int),
		docsPath: filepath.Join(path, documentsFile),
	}
	if err := store.loadDocuments(); err != nil {
		return nil, err
	}

	logger.Info("chromem store opened",
		zap.String("path", path),
		zap.Int("documents", len(store.docs)),
	)
	return store, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// precomputedOnly rejects chromem-initiated embedding. Vectors are always
// supplied by the caller; chromem must never embed on its own.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be precomputed")
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(chunkCollection, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: opening collection %s: %v", ErrStorage, chunkCollection, err)
	}
	return collection, nil
}

// Migrate ensures the chunk collection exists.
func (s *ChromemStore) Migrate(ctx context.Context) error {
	_, err := s.collection()
	return err
}

// UpsertDocument inserts or overwrites a document in the sidecar.
func (s *ChromemStore) UpsertDocument(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.ID] = doc
	return s.saveDocumentsLocked()
}

// GetDocument returns the document with the given ID.
func (s *ChromemStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &doc, nil
}

// ListDocuments returns document summaries matching the filters, newest first.
func (s *ChromemStore) ListDocuments(ctx context.Context, filters DocumentFilters) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []DocumentInfo
	for _, doc := range s.docs {
		if filters.Subject != "" && doc.Subject != filters.Subject {
			continue
		}
		if filters.GradeLevel != "" && doc.GradeLevel != filters.GradeLevel {
			continue
		}
		infos = append(infos, DocumentInfo{
			ID:         doc.ID,
			Title:      doc.Title,
			Source:     doc.Source,
			Subject:    doc.Subject,
			GradeLevel: doc.GradeLevel,
			DocType:    doc.DocType,
			ChunkCount: s.counts[doc.ID],
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// ReplaceChunks deletes the document's old chunks and stores the new set.
// chromem has no transactions; the pipeline embeds before calling so a
// failure here is a backend write failure, not a partial embed.
func (s *ChromemStore) ReplaceChunks(ctx context.Context, doc Document, chunks []Chunk) error {
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.config.Dimension {
			return fmt.Errorf("%w: chunk %d has dimension %d, want %d",
				ErrDimensionMismatch, chunk.Index, len(chunk.Embedding), s.config.Dimension)
		}
	}

	collection, err := s.collection()
	if err != nil {
		return err
	}

	if err := collection.Delete(ctx, map[string]string{"document_id": doc.ID}, nil); err != nil {
		return fmt.Errorf("%w: deleting old chunks for %s: %v", ErrStorage, doc.ID, err)
	}

	records := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		records[i] = chromem.Document{
			ID:      chunk.ID,
			Content: chunk.Content,
			Metadata: map[string]string{
				"document_id": doc.ID,
				"chunk_index": strconv.Itoa(chunk.Index),
				"title":       doc.Title,
				"source":      doc.Source,
				"subject":     doc.Subject,
				"grade_level": doc.GradeLevel,
			},
			Embedding: chunk.Embedding,
		}
	}

	// Concurrency 1: embeddings are already present, nothing to parallelize.
	if err := collection.AddDocuments(ctx, records, 1); err != nil {
		return fmt.Errorf("%w: adding chunks for %s: %v", ErrStorage, doc.ID, err)
	}

	s.mu.Lock()
	s.counts[doc.ID] = len(chunks)
	err = s.saveDocumentsLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Debug("replaced chunks",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// SearchChunks queries the chunk collection by embedding.
func (s *ChromemStore) SearchChunks(ctx context.Context, vector []float32, query SearchQuery) ([]SearchResult, error) {
	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, want %d",
			ErrDimensionMismatch, len(vector), s.config.Dimension)
	}

	collection, err := s.collection()
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults greater than the collection size.
	k := query.Limit
	if count := collection.Count(); count < k {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	where := make(map[string]string)
	if query.Filters.Subject != "" {
		where["subject"] = query.Filters.Subject
	}
	if query.Filters.GradeLevel != "" {
		where["grade_level"] = query.Filters.GradeLevel
	}

	hits, err := collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		// A where filter narrower than k hits is not an error condition.
		if strings.Contains(err.Error(), "nResults") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: querying chunks: %v", ErrStorage, err)
	}

	var results []SearchResult
	for _, hit := range hits {
		similarity := float64(hit.Similarity)
		if similarity <= query.Floor {
			continue
		}
		index, _ := strconv.Atoi(hit.Metadata["chunk_index"])
		results = append(results, SearchResult{
			ChunkID:    hit.ID,
			DocumentID: hit.Metadata["document_id"],
			Content:    hit.Content,
			Title:      hit.Metadata["title"],
			Source:     hit.Metadata["source"],
			Subject:    hit.Metadata["subject"],
			GradeLevel: hit.Metadata["grade_level"],
			ChunkIndex: index,
			Similarity: similarity,
		})
	}
	return results, nil
}

// DeleteDocument removes the document and its chunks.
func (s *ChromemStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.docs[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.docs, id)
	delete(s.counts, id)
	err := s.saveDocumentsLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	collection, err := s.collection()
	if err != nil {
		return err
	}
	if err := collection.Delete(ctx, map[string]string{"document_id": id}, nil); err != nil {
		return fmt.Errorf("%w: deleting chunks for %s: %v", ErrStorage, id, err)
	}
	return nil
}

// Stats reports document and chunk counts.
func (s *ChromemStore) Stats(ctx context.Context) (*Stats, error) {
	collection, err := s.collection()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	documents := len(s.docs)
	s.mu.RUnlock()

	return &Stats{
		Backend:   "chromem",
		Documents: documents,
		Chunks:    collection.Count(),
	}, nil
}

// Close persists nothing extra; chromem writes through on every mutation.
func (s *ChromemStore) Close() error {
	return nil
}

// loadDocuments reads the sidecar file if present.
func (s *ChromemStore) loadDocuments() error {
	content, err := os.ReadFile(s.docsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrStorage, s.docsPath, err)
	}
	var sc sidecar
	if err := json.Unmarshal(content, &sc); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrStorage, s.docsPath, err)
	}
	if sc.Documents != nil {
		s.docs = sc.Documents
	}
	if sc.ChunkCounts != nil {
		s.counts = sc.ChunkCounts
	}
	return nil
}

// saveDocumentsLocked writes the sidecar file. Caller holds s.mu.
func (s *ChromemStore) saveDocumentsLocked() error {
	content, err := json.MarshalIndent(sidecar{Documents: s.docs, ChunkCounts: s.counts}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding documents: %v", ErrStorage, err)
	}
	tmp := s.docsPath + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrStorage, tmp, err)
	}
	if err := os.Rename(tmp, s.docsPath); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrStorage, s.docsPath, err)
	}
	return nil
}
