package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps known texts to fixed vectors so similarity ordering
// is deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Dimension() int { return 3 }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"deploy the service":    {1, 0, 0},
		"deployment went fine":  {0.9, 0.1, 0},
		"recipe for pancakes":   {0, 1, 0},
		"database kept locking": {0.5, 0.5, 0},
	}}
	store, err := NewStore(Config{
		DBPath:   filepath.Join(t.TempDir(), "memory.db"),
		Embedder: embedder,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "deployment went fine", []string{"deploy"}, "review"))
	require.NoError(t, store.Save(ctx, "recipe for pancakes", nil, "tool"))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(context.Background(), "   ", nil, "tool")
	assert.Error(t, err)
}

func TestStoreSearchOrdersBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "deployment went fine", []string{"deploy"}, "review"))
	require.NoError(t, store.Save(ctx, "recipe for pancakes", nil, "tool"))
	require.NoError(t, store.Save(ctx, "database kept locking", []string{"db"}, "review"))

	hits, err := store.Search(ctx, "deploy the service", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "deployment went fine", hits[0].Content)
	assert.Equal(t, []string{"deploy"}, hits[0].Tags)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestStoreSearchEmptyQuery(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.Search(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStoreContextFormatsTopHits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "deployment went fine", nil, "review"))

	out, err := store.Context(ctx, "deploy the service")
	require.NoError(t, err)
	assert.Contains(t, out, "Relevant past experience:")
	assert.Contains(t, out, "1. deployment went fine")
}

// stubKeywords returns a fixed keyword string, or an error.
type stubKeywords struct {
	out string
	err error
}

func (s *stubKeywords) Infer(context.Context, string, string) (string, error) {
	return s.out, s.err
}

func TestStoreContextUsesGeneratedKeywords(t *testing.T) {
	store := newTestStore(t)
	store.keywords = &stubKeywords{out: "deploy the service"}
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "deployment went fine", nil, "review"))
	require.NoError(t, store.Save(ctx, "recipe for pancakes", nil, "tool"))

	// The raw goal embeds to the default vector; only the generated
	// keywords land near the deployment memory.
	out, err := store.Context(ctx, "ship the new build to production")
	require.NoError(t, err)
	assert.Contains(t, out, "1. deployment went fine")
}

func TestStoreContextFallsBackWhenKeywordsFail(t *testing.T) {
	store := newTestStore(t)
	store.keywords = &stubKeywords{err: errors.New("backend down")}
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "deployment went fine", nil, "review"))

	out, err := store.Context(ctx, "deploy the service")
	require.NoError(t, err)
	assert.Contains(t, out, "deployment went fine")
}

func TestStoreContextEmptyWhenNoMemories(t *testing.T) {
	store := newTestStore(t)

	out, err := store.Context(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, out)
}
