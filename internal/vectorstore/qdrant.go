package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantStoreConfig holds configuration for the Qdrant gRPC store.
type QdrantStoreConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the gRPC port (6334), not the HTTP REST port (6333).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Collection is the chunk collection name. Documents live in a second
	// collection named "<Collection>_docs".
	Collection string

	// Dimension is the embedding vector length.
	Dimension int
}

// Validate validates the configuration.
func (c QdrantStoreConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// maxGRPCMessageSize accommodates large chunk batches in one upsert.
const maxGRPCMessageSize = 50 * 1024 * 1024

// QdrantStore implements Store on Qdrant's native gRPC client. The binary
// transport avoids the HTTP layer's payload limits during bulk ingestion.
//
// Chunks carry real embeddings; document rows live in a companion collection
// with a one-dimensional placeholder vector, since Qdrant points must have
// one.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantStoreConfig
	logger *zap.Logger
}

var _ Store = (*QdrantStore)(nil)

// docsCollection returns the companion collection holding document rows.
func (s *QdrantStore) docsCollection() string {
	return s.config.Collection + "_docs"
}

// NewQdrantStore connects to Qdrant and verifies the connection.
func NewQdrantStore(config QdrantStoreConfig, logger *zap.Logger) (*QdrantStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxGRPCMessageSize),
				grpc.MaxCallSendMsgSize(maxGRPCMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrStorage, err)
	}

	store := &QdrantStore{client: client, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: qdrant health check: %v", ErrStorage, err)
	}

	logger.Info("qdrant store connected",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)
	return store, nil
}

// Migrate creates the chunk and document collections if missing.
func (s *QdrantStore) Migrate(ctx context.Context) error {
	collections := []struct {
		name string
		size uint64
	}{
		{s.config.Collection, uint64(s.config.Dimension)},
		{s.docsCollection(), 1},
	}

	for _, c := range collections {
		exists, err := s.client.CollectionExists(ctx, c.name)
		if err != nil {
			return fmt.Errorf("%w: checking collection %s: %v", ErrStorage, c.name, err)
		}
		if exists {
			continue
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     c.size,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("%w: creating collection %s: %v", ErrStorage, c.name, err)
		}
		s.logger.Info("created qdrant collection", zap.String("collection", c.name))
	}
	return nil
}

// UpsertDocument stores the document row with a placeholder vector.
func (s *QdrantStore) UpsertDocument(ctx context.Context, doc Document) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.docsCollection(),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(1),
			Payload: documentPayload(doc),
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: upserting document %s: %v", ErrStorage, doc.ID, err)
	}
	return nil
}

// GetDocument retrieves the document row by point ID.
func (s *QdrantStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.docsCollection(),
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: getting document %s: %v", ErrStorage, id, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc := documentFromPayload(points[0].Payload)
	return &doc, nil
}

// ListDocuments scrolls the document collection, newest first.
func (s *QdrantStore) ListDocuments(ctx context.Context, filters DocumentFilters) ([]DocumentInfo, error) {
	filter := metadataFilter(filters)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.docsCollection(),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(1000)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing documents: %v", ErrStorage, err)
	}

	var infos []DocumentInfo
	for _, point := range points {
		doc := documentFromPayload(point.Payload)

		count, err := s.countChunks(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, DocumentInfo{
			ID:         doc.ID,
			Title:      doc.Title,
			Source:     doc.Source,
			Subject:    doc.Subject,
			GradeLevel: doc.GradeLevel,
			DocType:    doc.DocType,
			ChunkCount: count,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// ReplaceChunks deletes the document's old chunk points and upserts the new
// set in one batch.
func (s *QdrantStore) ReplaceChunks(ctx context.Context, doc Document, chunks []Chunk) error {
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.config.Dimension {
			return fmt.Errorf("%w: chunk %d has dimension %d, want %d",
				ErrDimensionMismatch, chunk.Index, len(chunk.Embedding), s.config.Dimension)
		}
	}

	if err := s.deleteChunks(ctx, doc.ID); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: chunkPayload(doc, chunk),
		}
	}

	err := s.withRetry(ctx, func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: upserting chunks for %s: %v", ErrStorage, doc.ID, err)
	}

	s.logger.Debug("replaced chunks",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// SearchChunks queries the chunk collection with metadata filters and a
// score threshold.
func (s *QdrantStore) SearchChunks(ctx context.Context, vector []float32, query SearchQuery) ([]SearchResult, error) {
	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, want %d",
			ErrDimensionMismatch, len(vector), s.config.Dimension)
	}

	var hits []*qdrant.ScoredPoint
	err := s.withRetry(ctx, func() error {
		var err error
		hits, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(query.Limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         metadataFilter(query.Filters),
			ScoreThreshold: qdrant.PtrOf(float32(query.Floor)),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: searching chunks: %v", ErrStorage, err)
	}

	var results []SearchResult
	for _, hit := range hits {
		similarity := float64(hit.Score)
		// The score threshold is inclusive; the floor is strict.
		if similarity <= query.Floor {
			continue
		}
		payload := hit.Payload
		results = append(results, SearchResult{
			ChunkID:    hit.Id.GetUuid(),
			DocumentID: payload["document_id"].GetStringValue(),
			Content:    payload["content"].GetStringValue(),
			Title:      payload["title"].GetStringValue(),
			Source:     payload["source"].GetStringValue(),
			Subject:    payload["subject"].GetStringValue(),
			GradeLevel: payload["grade_level"].GetStringValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Similarity: similarity,
		})
	}
	return results, nil
}

// DeleteDocument removes the document row and its chunk points.
func (s *QdrantStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.docsCollection(),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewIDUUID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: deleting document %s: %v", ErrStorage, id, err)
	}
	return s.deleteChunks(ctx, id)
}

// Stats counts points in both collections.
func (s *QdrantStore) Stats(ctx context.Context) (*Stats, error) {
	docs, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.docsCollection()})
	if err != nil {
		return nil, fmt.Errorf("%w: counting documents: %v", ErrStorage, err)
	}
	chunks, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.config.Collection})
	if err != nil {
		return nil, fmt.Errorf("%w: counting chunks: %v", ErrStorage, err)
	}
	return &Stats{
		Backend:   "qdrant",
		Documents: int(docs),
		Chunks:    int(chunks),
	}, nil
}

// Close shuts down the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// deleteChunks removes all chunk points belonging to a document.
func (s *QdrantStore) deleteChunks(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("document_id", documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: deleting chunks for %s: %v", ErrStorage, documentID, err)
	}
	return nil
}

// countChunks counts chunk points belonging to a document.
func (s *QdrantStore) countChunks(ctx context.Context, documentID string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting chunks for %s: %v", ErrStorage, documentID, err)
	}
	return int(count), nil
}

// metadataFilter builds conjunctive keyword conditions. Returns nil when no
// filters are set.
func metadataFilter(filters DocumentFilters) *qdrant.Filter {
	var conditions []*qdrant.Condition
	if filters.Subject != "" {
		conditions = append(conditions, qdrant.NewMatch("subject", filters.Subject))
	}
	if filters.GradeLevel != "" {
		conditions = append(conditions, qdrant.NewMatch("grade_level", filters.GradeLevel))
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func documentPayload(doc Document) map[string]*qdrant.Value {
	metadata := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	return qdrant.NewValueMap(map[string]any{
		"id":          doc.ID,
		"title":       doc.Title,
		"source":      doc.Source,
		"subject":     doc.Subject,
		"grade_level": doc.GradeLevel,
		"doc_type":    doc.DocType,
		"metadata":    metadata,
		"content":     doc.Content,
		"created_at":  doc.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  doc.UpdatedAt.Format(time.RFC3339Nano),
	})
}

func documentFromPayload(payload map[string]*qdrant.Value) Document {
	createdAt, _ := time.Parse(time.RFC3339Nano, payload["created_at"].GetStringValue())
	updatedAt, _ := time.Parse(time.RFC3339Nano, payload["updated_at"].GetStringValue())

	var metadata map[string]string
	if fields := payload["metadata"].GetStructValue().GetFields(); len(fields) > 0 {
		metadata = make(map[string]string, len(fields))
		for k, v := range fields {
			metadata[k] = v.GetStringValue()
		}
	}

	return Document{
		ID:         payload["id"].GetStringValue(),
		Title:      payload["title"].GetStringValue(),
		Source:     payload["source"].GetStringValue(),
		Subject:    payload["subject"].GetStringValue(),
		GradeLevel: payload["grade_level"].GetStringValue(),
		DocType:    payload["doc_type"].GetStringValue(),
		Metadata:   metadata,
		Content:    payload["content"].GetStringValue(),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
}

func chunkPayload(doc Document, chunk Chunk) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		"document_id": doc.ID,
		"chunk_index": int64(chunk.Index),
		"content":     chunk.Content,
		"title":       doc.Title,
		"source":      doc.Source,
		"subject":     doc.Subject,
		"grade_level": doc.GradeLevel,
	})
}

// qdrantMaxRetries bounds retries of transient gRPC failures.
const qdrantMaxRetries = 3

// withRetry retries transient gRPC failures with doubling backoff.
func (s *QdrantStore) withRetry(ctx context.Context, op func() error) error {
	backoff := time.Second
	var err error
	for attempt := 0; attempt < qdrantMaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying qdrant operation",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		if err = op(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
	}
	return err
}

// isTransient reports whether a gRPC failure is worth retrying.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}
