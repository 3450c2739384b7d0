// Package docstore is the document store gateway: a vector index over job
// records kept in SQLite with the sqlite-vec extension.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

// DefaultLimit is the number of records returned when the caller does not care.
const DefaultLimit = 3

var registerOnce sync.Once

// Record is one search hit.
type Record struct {
	ID       int64
	Content  string
	Metadata map[string]any
	// Distance to the query vector; smaller is closer.
	Distance float64
}

// Store implements search over embedded documents. It is safe for concurrent use.
type Store struct {
	db         *sql.DB
	embedder   llm.Embedder
	dimensions int
	logger     *zap.Logger
}

// Open opens or creates the index at path. Use ":memory:" for an ephemeral index.
func Open(path string, embedder llm.Embedder, dimensions int, log *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions %d", dimensions)
	}

	registerOnce.Do(sqlite_vec.Auto)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:         db,
		embedder:   embedder,
		dimensions: dimensions,
		logger:     logger.WithFields(log, zap.String("component", "docstore")),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS document_vectors USING vec0(embedding float[%d])`, s.dimensions),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate vector db: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add embeds the payloads and stores them. The indexed text is the payload's
// "text" field, then "content", then the whole payload as JSON.
func (s *Store) Add(ctx context.Context, payloads ...map[string]any) error {
	if len(payloads) == 0 {
		return nil
	}

	texts := make([]string, len(payloads))
	metas := make([][]byte, len(payloads))
	for i, payload := range payloads {
		meta, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload %d: %w", i, err)
		}
		metas[i] = meta
		texts[i] = ContentOf(payload, meta)
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embed documents: expected %d vectors, got %d", len(texts), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for i := range texts {
		if len(vectors[i]) != s.dimensions {
			return fmt.Errorf("document %d: expected %d dimensions, got %d", i, s.dimensions, len(vectors[i]))
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO documents (content, metadata) VALUES (?, ?)`, texts[i], string(metas[i]))
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("document id: %w", err)
		}
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("serialize vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO document_vectors (rowid, embedding) VALUES (?, ?)`, id, blob); err != nil {
			return fmt.Errorf("insert vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit documents: %w", err)
	}
	s.logger.Debug("documents indexed", zap.Int("count", len(texts)))
	return nil
}

// Search returns at most limit records ordered by relevance.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []Record{}, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != s.dimensions {
		return nil, fmt.Errorf("embed query: unexpected vector shape")
	}
	blob, err := sqlite_vec.SerializeFloat32(vectors[0])
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH knn AS (
			SELECT rowid, distance FROM document_vectors
			WHERE embedding MATCH ? AND k = ?
		)
		SELECT d.id, d.content, d.metadata, knn.distance
		FROM knn JOIN documents d ON d.id = knn.rowid
		ORDER BY knn.distance`, blob, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec  Record
			meta string
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &meta, &rec.Distance); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of document %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	s.logger.Debug("documents searched",
		zap.String("query", logger.TruncateForLog(query, 80)),
		zap.Int("limit", limit),
		zap.Int("found", len(records)),
	)
	return records, nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// ContentOf picks the indexed text of a payload.
func ContentOf(payload map[string]any, encoded []byte) string {
	for _, key := range []string{"text", "content"} {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if encoded == nil {
		encoded, _ = json.Marshal(payload)
	}
	return string(encoded)
}
