// Package router classifies career questions, consults the structured and
// document stores as needed and composes one answer in the user's language.
package router

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/lang"
	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

const (
	defaultSearchLimit    = 3
	defaultHistoryWindow  = 10
	defaultThoughtPreview = 200
	classifyHistoryTurns  = 4
)

var (
	//go:embed prompts/classify.md
	classifyPrompt string
	//go:embed prompts/compose.md
	composePrompt string
)

// LanguageDetector tells which language a query is written in.
type LanguageDetector interface {
	Detect(text string) lang.Language
}

// Config tunes the router. Zero values select defaults.
type Config struct {
	SearchLimit    int
	HistoryWindow  int
	ThoughtPreview int
	DefaultIntent  Intent
}

// Metadata describes the cost of one answer.
type Metadata struct {
	LatencySeconds float64 `json:"latency_seconds"`
	InputTokens    int     `json:"input_token_count"`
	OutputTokens   int     `json:"output_token_count"`
}

// RoutedAnswer is the final answer with its metadata.
type RoutedAnswer struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Router holds only read-only state after New, so one Router can serve many
// sessions concurrently.
type Router struct {
	gen        llm.Generator
	structured Tool
	documents  Tool
	detector   LanguageDetector
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// New builds a Router. Either store may be nil; questions that need a missing
// store are answered with an apology.
func New(gen llm.Generator, structured StructuredStore, documents DocumentStore, detector LanguageDetector, cfg Config, log *zap.Logger) (*Router, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if detector == nil {
		return nil, errors.New("language detector is required")
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.ThoughtPreview <= 0 {
		cfg.ThoughtPreview = defaultThoughtPreview
	}

	return &Router{
		gen:        llm.Track(gen),
		structured: &structuredTool{store: structured},
		documents:  &documentTool{store: documents, limit: cfg.SearchLimit},
		detector:   detector,
		cfg:        cfg,
		logger:     logger.WithFields(log, zap.String("component", "router")),
		now:        time.Now,
	}, nil
}

// Route returns the answer text for query. It never fails: errors become an
// apology in the query language.
func (r *Router) Route(ctx context.Context, query string, h history.History) string {
	return r.Answer(ctx, query, h).Text
}

// Answer is Route with metadata. It is built on Stream, so the text always
// equals the concatenated content events of a stream for the same input.
func (r *Router) Answer(ctx context.Context, query string, h history.History) RoutedAnswer {
	var (
		text strings.Builder
		meta Metadata
	)
	for event := range r.Stream(ctx, query, h) {
		switch event.Kind {
		case KindContent:
			text.WriteString(event.Text)
		case KindMetadata:
			meta = *event.Metadata
		}
	}
	return RoutedAnswer{Text: text.String(), Metadata: meta}
}

func (r *Router) classify(ctx context.Context, query string, h history.History, log *zap.Logger) Intent {
	prompt := strings.NewReplacer(
		"{{HISTORY}}", transcriptOrNone(h.Last(classifyHistoryTurns)),
		"{{QUERY}}", query,
	).Replace(classifyPrompt)

	req := llm.Prompt("", prompt)
	req.Temperature = llm.Temperature(0)

	resp, err := r.gen.Generate(ctx, req)
	if err != nil {
		log.Warn("classification failed, using default intent",
			zap.String(logger.FieldIntent, r.cfg.DefaultIntent.String()),
			zap.Error(err),
		)
		return r.cfg.DefaultIntent
	}

	intent, ok := ClassifyAnswer(resp.Text)
	if !ok {
		log.Warn("unclear intent, using default",
			zap.String("answer", logger.TruncateForLog(resp.Text, 40)),
			zap.String(logger.FieldIntent, r.cfg.DefaultIntent.String()),
		)
		return r.cfg.DefaultIntent
	}
	return intent
}

func (r *Router) composeRequest(query string, h history.History, language lang.Language, calls []ToolInvocation) *llm.Request {
	system := strings.ReplaceAll(composePrompt, "{{LANGUAGE}}", language.Name)

	var b strings.Builder
	if window := h.Last(r.cfg.HistoryWindow); len(window) > 0 {
		b.WriteString("Conversation so far:\n")
		b.WriteString(window.Transcript())
		b.WriteString("\n\n")
	}
	if len(calls) > 0 {
		b.WriteString("Tool results:\n")
		for _, call := range calls {
			b.WriteString("[")
			b.WriteString(call.Tool)
			b.WriteString("]\n")
			b.WriteString(strings.TrimSpace(call.Output))
			b.WriteString("\n\n")
		}
	}
	b.WriteString("User message (")
	b.WriteString(language.Name)
	b.WriteString("): ")
	b.WriteString(query)

	return &llm.Request{
		System:      system,
		Messages:    []llm.Message{llm.UserText(b.String())},
		Temperature: llm.Temperature(0.3),
	}
}

func transcriptOrNone(h history.History) string {
	if len(h) == 0 {
		return "(none)"
	}
	return h.Transcript()
}
