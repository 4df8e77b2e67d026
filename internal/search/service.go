// Package search answers similarity queries over the chunk index.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// Embedder turns a query string into an embedding vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options narrows and sizes a search. Zero values fall back to configured
// defaults (Limit) or match everything (filters).
type Options struct {
	Subject    string
	GradeLevel string
	Limit      int
}

// Config holds search defaults.
type Config struct {
	// Limit is the result cap when the caller does not supply one.
	Limit int

	// SimilarityFloor excludes results at or below this cosine similarity.
	SimilarityFloor float64
}

// Service embeds queries and ranks chunk hits. Failures degrade to an empty
// result set: "no context found" is a valid state for downstream prompting,
// not an error worth propagating.
type Service struct {
	embedder Embedder
	store    vectorstore.Store
	config   Config
	logger   *zap.Logger
}

// NewService creates a search service.
func NewService(embedder Embedder, store vectorstore.Store, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embedder: embedder, store: store, config: config, logger: logger}
}

// Search embeds the query string and delegates to SearchVector.
func (s *Service) Search(ctx context.Context, query string, opts Options) []vectorstore.SearchResult {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, returning no context",
			zap.String("query", query),
			zap.Error(err),
		)
		return nil
	}
	return s.SearchVector(ctx, vector, opts)
}

// SearchVector runs a similarity query with a pre-computed vector, skipping
// the embedding call.
func (s *Service) SearchVector(ctx context.Context, vector []float32, opts Options) []vectorstore.SearchResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.Limit
	}

	results, err := s.store.SearchChunks(ctx, vector, vectorstore.SearchQuery{
		Limit: limit,
		Floor: s.config.SimilarityFloor,
		Filters: vectorstore.DocumentFilters{
			Subject:    opts.Subject,
			GradeLevel: opts.GradeLevel,
		},
	})
	if err != nil {
		s.logger.Warn("similarity search failed, returning no context", zap.Error(err))
		return nil
	}

	s.logger.Debug("search complete",
		zap.Int("results", len(results)),
		zap.String("subject", opts.Subject),
		zap.String("grade_level", opts.GradeLevel),
	)
	return results
}

// SearchByTopic expands a short topic keyword into a fuller semantic target
// before searching. Bare keywords are poor semantic anchors; the template
// synthesizes the kind of sentence the index actually contains.
func (s *Service) SearchByTopic(ctx context.Context, topic string, opts Options) []vectorstore.SearchResult {
	return s.Search(ctx, expandTopic(topic, opts.Subject, opts.GradeLevel), opts)
}

// expandTopic builds the templated topic query, dropping clauses whose
// filter values are absent.
func expandTopic(topic, subject, grade string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Educational content about %s", topic)
	if subject != "" {
		fmt.Fprintf(&b, " in %s", subject)
	}
	if grade != "" {
		fmt.Fprintf(&b, " for grade %s", grade)
	}
	return b.String()
}
