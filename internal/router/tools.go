package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/career-assistant/internal/docstore"
)

const (
	ToolStructured = "sql_database"
	ToolDocuments  = "knowledge_base"

	noDocumentsFound = "No specific data found in the knowledge base."
)

// StructuredStore answers natural-language questions from relational data.
type StructuredStore interface {
	Answer(ctx context.Context, question string) (string, error)
}

// DocumentStore returns records similar to a query, most relevant first.
type DocumentStore interface {
	Search(ctx context.Context, query string, limit int) ([]docstore.Record, error)
}

// Tool is one capability the router can call while answering.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, input string) (string, error)
}

// ToolInvocation records one tool call made while answering a query.
type ToolInvocation struct {
	Tool   string
	Input  string
	Output string
}

type structuredTool struct {
	store StructuredStore
}

func (t *structuredTool) Name() string { return ToolStructured }

func (t *structuredTool) Invoke(ctx context.Context, input string) (string, error) {
	if t.store == nil {
		return "", errors.New("structured store is not configured")
	}
	return t.store.Answer(ctx, input)
}

type documentTool struct {
	store DocumentStore
	limit int
}

func (t *documentTool) Name() string { return ToolDocuments }

func (t *documentTool) Invoke(ctx context.Context, input string) (string, error) {
	if t.store == nil {
		return "", errors.New("document store is not configured")
	}
	records, err := t.store.Search(ctx, input, t.limit)
	if err != nil {
		return "", err
	}
	return FormatRecords(records), nil
}

// FormatRecords renders search hits for the composing prompt.
func FormatRecords(records []docstore.Record) string {
	if len(records) == 0 {
		return noDocumentsFound
	}
	parts := make([]string, 0, len(records))
	for i, rec := range records {
		parts = append(parts, fmt.Sprintf("Record %d:\n%s", i+1, strings.TrimSpace(rec.Content)))
	}
	return strings.Join(parts, "\n\n")
}

func (r *Router) plan(intent Intent) []Tool {
	switch intent {
	case IntentStructured:
		return []Tool{r.structured}
	case IntentDescriptive:
		return []Tool{r.documents}
	case IntentCompound:
		return []Tool{r.structured, r.documents}
	default:
		return nil
	}
}
