// Package sqlstore is the structured store gateway: natural-language questions
// answered from a read-only SQLite jobs database.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

const (
	defaultMaxRows  = 50
	defaultAttempts = 3
	// Longer cell values are cut before the rows reach the model.
	maxRenderedCell = 200
)

var (
	//go:embed prompts/query.md
	queryPrompt string
	//go:embed prompts/summary.md
	summaryPrompt string
)

// Option configures a Store.
type Option func(*Store)

// WithMaxRows caps the rows fetched per query.
func WithMaxRows(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

// WithAttempts sets how many queries the model may try before giving up.
func WithAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// Store answers questions against the jobs database. Its state is read-only
// after Open, so it is safe for concurrent use.
type Store struct {
	db       *sql.DB
	gen      llm.Generator
	schema   string
	maxRows  int
	attempts int
	logger   *zap.Logger
}

// Open opens the database at path in read-only mode.
func Open(path string, gen llm.Generator, log *zap.Logger, opts ...Option) (*Store, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=true", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open jobs db: %w", err)
	}

	s := &Store{
		db:       db,
		gen:      llm.Track(gen),
		maxRows:  defaultMaxRows,
		attempts: defaultAttempts,
		logger:   logger.WithFields(log, zap.String("component", "sqlstore")),
	}
	for _, opt := range opts {
		opt(s)
	}

	schema, err := loadSchema(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.schema = schema
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schema returns the CREATE statements shown to the model.
func (s *Store) Schema() string {
	return s.schema
}

// Answer translates question into SQL, runs it and summarizes the rows.
// A failing query is shown to the model on the next attempt.
func (s *Store) Answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}

	var (
		feedback string
		lastErr  error
	)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		query, err := s.writeQuery(ctx, question, feedback)
		if err != nil {
			return "", fmt.Errorf("write query: %w", err)
		}

		result, err := s.run(ctx, query)
		if err != nil {
			lastErr = err
			feedback = fmt.Sprintf("Previous query:\n%s\nFailed with: %v", query, err)
			s.logger.Info("query attempt failed",
				zap.Int("attempt", attempt),
				zap.String("query", logger.TruncateForLog(query, 200)),
				zap.Error(err),
			)
			continue
		}

		s.logger.Debug("query executed",
			zap.Int("attempt", attempt),
			zap.String("query", logger.TruncateForLog(query, 200)),
			zap.Int("rows", len(result.Rows)),
		)
		return s.summarize(ctx, question, query, result)
	}

	return "", fmt.Errorf("error executing query: %w", lastErr)
}

func (s *Store) writeQuery(ctx context.Context, question, feedback string) (string, error) {
	prompt := strings.NewReplacer(
		"{{SCHEMA}}", s.schema,
		"{{MAX_ROWS}}", fmt.Sprint(s.maxRows),
		"{{QUESTION}}", question,
		"{{FEEDBACK}}", feedback,
	).Replace(queryPrompt)

	req := llm.Prompt("", prompt)
	req.Temperature = llm.Temperature(0)
	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return extractSQL(resp.Text), nil
}

func (s *Store) summarize(ctx context.Context, question, query string, result *Result) (string, error) {
	prompt := strings.NewReplacer(
		"{{QUESTION}}", question,
		"{{QUERY}}", query,
		"{{ROWS}}", result.String(),
	).Replace(summaryPrompt)

	req := llm.Prompt("", prompt)
	req.Temperature = llm.Temperature(0)
	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize rows: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Result is a rendered query result.
type Result struct {
	Columns   []string
	Rows      [][]string
	Truncated bool
}

// String renders the result as a pipe separated table.
func (r *Result) String() string {
	if len(r.Rows) == 0 {
		return "(no rows)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	for _, row := range r.Rows {
		b.WriteString("\n")
		b.WriteString(strings.Join(row, " | "))
	}
	if r.Truncated {
		b.WriteString("\n(more rows omitted)")
	}
	return b.String()
}

// Query runs a read-only statement and returns at most the configured number of rows.
func (s *Store) Query(ctx context.Context, query string) (*Result, error) {
	return s.run(ctx, query)
}

func (s *Store) run(ctx context.Context, query string) (*Result, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		if len(result.Rows) == s.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = logger.TruncateForLog(render(v), maxRenderedCell)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func loadSchema(db *sql.DB) (string, error) {
	rows, err := db.Query(`SELECT sql FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("read schema: %w", err)
		}
		stmts = append(stmts, strings.TrimSpace(stmt)+";")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	if len(stmts) == 0 {
		return "", errors.New("jobs db has no tables")
	}
	return strings.Join(stmts, "\n"), nil
}
