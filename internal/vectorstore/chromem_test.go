package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemStoreConfig{
		Path:      t.TempDir(),
		Dimension: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testDocument(subject, grade string) Document {
	now := time.Now().UTC()
	return Document{
		ID:         uuid.New().String(),
		Title:      "Photosynthesis Basics",
		Source:     "unit-3.md",
		Subject:    subject,
		GradeLevel: grade,
		Content:    "Plants convert light into chemical energy.",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testChunks(n int, vec []float32) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			ID:        uuid.New().String(),
			Index:     i,
			Content:   "chunk content",
			Embedding: vec,
		}
	}
	return chunks
}

func TestChromemStore_DocumentRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("biology", "8")
	require.NoError(t, store.UpsertDocument(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Subject, got.Subject)
	assert.Equal(t, doc.Content, got.Content)

	// Upsert overwrites in place.
	doc.Title = "Photosynthesis, Revised"
	require.NoError(t, store.UpsertDocument(ctx, doc))
	got, err = store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis, Revised", got.Title)
}

func TestChromemStore_GetDocumentNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDocument(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChromemStore_ReplaceChunksValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := testDocument("biology", "8")

	err := store.ReplaceChunks(ctx, doc, nil)
	assert.ErrorIs(t, err, ErrEmptyChunks)

	err = store.ReplaceChunks(ctx, doc, testChunks(1, []float32{1, 0}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemStore_ReplaceChunksSwapsFully(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("biology", "8")
	require.NoError(t, store.UpsertDocument(ctx, doc))
	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(3, []float32{1, 0, 0, 0})))
	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(2, []float32{1, 0, 0, 0})))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Chunks, "old chunks must not survive a replacement")
}

func TestChromemStore_SearchChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bio := testDocument("biology", "8")
	math := testDocument("math", "8")
	require.NoError(t, store.UpsertDocument(ctx, bio))
	require.NoError(t, store.UpsertDocument(ctx, math))

	// bio chunk aligned with the query, math chunk orthogonal to it.
	require.NoError(t, store.ReplaceChunks(ctx, bio, []Chunk{
		{ID: uuid.New().String(), Index: 0, Content: "light reactions", Embedding: []float32{1, 0, 0, 0}},
		{ID: uuid.New().String(), Index: 1, Content: "dark reactions", Embedding: []float32{0.9, 0.436, 0, 0}},
	}))
	require.NoError(t, store.ReplaceChunks(ctx, math, []Chunk{
		{ID: uuid.New().String(), Index: 0, Content: "fractions", Embedding: []float32{0, 1, 0, 0}},
	}))

	query := []float32{1, 0, 0, 0}

	t.Run("ordered by similarity", func(t *testing.T) {
		results, err := store.SearchChunks(ctx, query, SearchQuery{Limit: 10, Floor: 0.5})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "light reactions", results[0].Content)
		assert.Equal(t, "dark reactions", results[1].Content)
		assert.Greater(t, results[0].Similarity, results[1].Similarity)
	})

	t.Run("floor is strict", func(t *testing.T) {
		// The math chunk is orthogonal: similarity exactly 0, floor 0
		// excludes it.
		results, err := store.SearchChunks(ctx, query, SearchQuery{Limit: 10, Floor: 0})
		require.NoError(t, err)
		for _, r := range results {
			assert.Greater(t, r.Similarity, 0.0)
		}
	})

	t.Run("subject filter", func(t *testing.T) {
		results, err := store.SearchChunks(ctx, query, SearchQuery{
			Limit:   10,
			Floor:   -1,
			Filters: DocumentFilters{Subject: "math"},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "fractions", results[0].Content)
		assert.Equal(t, math.ID, results[0].DocumentID)
	})

	t.Run("metadata denormalized onto results", func(t *testing.T) {
		results, err := store.SearchChunks(ctx, query, SearchQuery{Limit: 1, Floor: 0.5})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, bio.Title, results[0].Title)
		assert.Equal(t, "biology", results[0].Subject)
		assert.Equal(t, "8", results[0].GradeLevel)
		assert.Equal(t, 0, results[0].ChunkIndex)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := store.SearchChunks(ctx, []float32{1, 0}, SearchQuery{Limit: 10})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestChromemStore_SearchEmptyStore(t *testing.T) {
	store := newTestStore(t)

	results, err := store.SearchChunks(context.Background(), []float32{1, 0, 0, 0}, SearchQuery{Limit: 5, Floor: 0.7})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_ListDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bio := testDocument("biology", "8")
	bio.CreatedAt = time.Now().UTC().Add(-time.Hour)
	math := testDocument("math", "7")
	require.NoError(t, store.UpsertDocument(ctx, bio))
	require.NoError(t, store.UpsertDocument(ctx, math))
	require.NoError(t, store.ReplaceChunks(ctx, bio, testChunks(2, []float32{1, 0, 0, 0})))

	all, err := store.ListDocuments(ctx, DocumentFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, math.ID, all[0].ID, "newest first")
	assert.Equal(t, bio.ID, all[1].ID)
	assert.Equal(t, 2, all[1].ChunkCount)

	filtered, err := store.ListDocuments(ctx, DocumentFilters{Subject: "math", GradeLevel: "7"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, math.ID, filtered[0].ID)

	none, err := store.ListDocuments(ctx, DocumentFilters{Subject: "math", GradeLevel: "8"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChromemStore_DeleteDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("biology", "8")
	require.NoError(t, store.UpsertDocument(ctx, doc))
	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(2, []float32{1, 0, 0, 0})))

	require.NoError(t, store.DeleteDocument(ctx, doc.ID))

	_, err := store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Documents)
	assert.Equal(t, 0, stats.Chunks)

	assert.ErrorIs(t, store.DeleteDocument(ctx, doc.ID), ErrNotFound)
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewChromemStore(ChromemStoreConfig{Path: dir, Dimension: 4}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	doc := testDocument("biology", "8")
	require.NoError(t, store.UpsertDocument(ctx, doc))
	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(2, []float32{1, 0, 0, 0})))
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(ChromemStoreConfig{Path: dir, Dimension: 4}, zap.NewNop())
	require.NoError(t, err)

	got, err := reopened.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)

	results, err := reopened.SearchChunks(ctx, []float32{1, 0, 0, 0}, SearchQuery{Limit: 5, Floor: 0.5})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
