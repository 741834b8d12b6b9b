package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/ebarros/kestrel/internal/metrics"
	"github.com/ebarros/kestrel/pkg/tools"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// KeywordGenerator distills a goal into search keywords. The retrying
// inference client satisfies this.
type KeywordGenerator interface {
	Infer(ctx context.Context, system, prompt string) (string, error)
}

// Store persists memories with vector embeddings in SQLite. Similarity
// search goes through sqlite-vec's cosine distance.
type Store struct {
	db       string
	conn     *sql.DB
	embedder Embedder
	keywords KeywordGenerator
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// Config holds store construction parameters.
type Config struct {
	DBPath   string
	Embedder Embedder
	Keywords KeywordGenerator // optional
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics // optional
}

// NewStore opens (or creates) the memory database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	conn, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{
		db:       cfg.DBPath,
		conn:     conn,
		embedder: cfg.Embedder,
		keywords: cfg.Keywords,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
			memory_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.embedder.Dimension())
	if _, err := s.conn.Exec(vectorSchema); err != nil {
		return fmt.Errorf("creating vector table: %w", err)
	}
	return nil
}

// Save embeds the content and stores it with its tags and source.
func (s *Store) Save(ctx context.Context, content string, tags []string, source string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("content is required")
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshaling embedding: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	id := uuid.NewString()
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memories (id, content, tags, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, content, string(tagsJSON), source, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_vectors (memory_id, embedding) VALUES (?, ?)`,
		id, string(embeddingJSON),
	); err != nil {
		return fmt.Errorf("inserting embedding: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	if s.metrics != nil {
		s.metrics.MemorySavesTotal.Inc()
	}
	s.logger.Debug().Str("id", id).Str("source", source).Msg("saved memory")
	return nil
}

// Search returns the topK memories most similar to the query.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]tools.MemoryHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT m.content, m.tags, vec_distance_cosine(v.embedding, ?) AS distance
		FROM memory_vectors v
		JOIN memories m ON m.id = v.memory_id
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []tools.MemoryHit
	for rows.Next() {
		var content, tagsJSON string
		var distance float64
		if err := rows.Scan(&content, &tagsJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			tags = nil
		}
		hits = append(hits, tools.MemoryHit{
			Content:    content,
			Tags:       tags,
			Similarity: 1.0 - distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if s.metrics != nil {
		s.metrics.MemoryQueriesTotal.Inc()
	}
	return hits, nil
}

const keywordSystem = "You extract search keywords. Respond with a short comma-separated list of keywords only, no prose."

// searchQuery distills the goal into keywords when a generator is
// configured. Any failure falls back to the raw goal.
func (s *Store) searchQuery(ctx context.Context, goal string) string {
	if s.keywords == nil {
		return goal
	}
	out, err := s.keywords.Infer(ctx, keywordSystem,
		fmt.Sprintf("Extract the key search terms from this goal:\n\n%s", goal))
	if err != nil {
		s.logger.Debug().Err(err).Msg("keyword generation failed, using raw goal")
		return goal
	}
	if out = strings.TrimSpace(out); out == "" {
		return goal
	}
	return out
}

// Context retrieves the memories most relevant to a goal, formatted for
// inclusion in a planning prompt. At most three entries are returned;
// an empty string means nothing relevant was found.
func (s *Store) Context(ctx context.Context, goal string) (string, error) {
	hits, err := s.Search(ctx, s.searchQuery(ctx, goal), 3)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Relevant past experience:\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, hit.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.conn.Close()
}
