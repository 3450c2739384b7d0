// Package advisor reviews CVs against the job catalog.
package advisor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents"
	"github.com/spigell/career-assistant/internal/docstore"
	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

const (
	// SearchLimit is the number of catalog jobs a consultation considers.
	SearchLimit = 5
	// MaxCVRunes bounds the CV text sent with report and match prompts.
	MaxCVRunes = 5000

	noMatches           = "No specific job matches found in the database."
	defaultMaxLogLength = 200
)

var (
	//go:embed prompts/profile.md
	profilePrompt string
	//go:embed prompts/consult.md
	consultPrompt string
	//go:embed prompts/match.md
	matchPrompt string
)

// ErrEmptyCV is returned when there is no CV text to work with.
var ErrEmptyCV = errors.New("cv text is empty")

// Searcher finds catalog jobs similar to a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]docstore.Record, error)
}

type Advisor struct {
	gen       llm.Generator
	docs      Searcher
	logger    *zap.Logger
	maxLogLen int
}

// Consultation is the result of a CV review.
type Consultation struct {
	SearchQuery string            `json:"search_query"`
	Report      string            `json:"analysis"`
	Jobs        []docstore.Record `json:"-"`
}

// New builds an Advisor. docs may be nil; consultations then run without
// catalog matches.
func New(gen llm.Generator, docs Searcher, log *zap.Logger) (*Advisor, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	return &Advisor{
		gen:       gen,
		docs:      docs,
		logger:    logger.ForAgent(log, "advisor"),
		maxLogLen: defaultMaxLogLength,
	}, nil
}

// Consult derives a search query from the CV, looks up matching jobs and
// writes a consultation report.
func (a *Advisor) Consult(ctx context.Context, cvText string) (*Consultation, error) {
	cvText = strings.TrimSpace(cvText)
	if cvText == "" {
		return nil, ErrEmptyCV
	}

	profile, err := a.gen.Generate(ctx, llm.Prompt("", agents.Render(profilePrompt, map[string]string{"CV": cvText})))
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}
	query := cleanQuery(profile.Text)
	if query == "" {
		return nil, errors.New("build search query: model returned an empty query")
	}
	a.logger.Info("search query generated", zap.String("query", logger.TruncateForLog(query, a.maxLogLen)))

	var jobs []docstore.Record
	if a.docs != nil {
		jobs, err = a.docs.Search(ctx, query, SearchLimit)
		if err != nil {
			return nil, fmt.Errorf("search jobs: %w", err)
		}
	}
	a.logger.Info("jobs found", zap.Int("count", len(jobs)))

	req := llm.Prompt("", agents.Render(consultPrompt, map[string]string{
		"CV":   agents.Clip(cvText, MaxCVRunes),
		"JOBS": jobsContext(jobs),
	}))
	req.Temperature = llm.Temperature(0.7)

	report, err := a.gen.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("write consultation: %w", err)
	}

	a.logger.Debug("consultation written",
		zap.Int("response_length", utf8.RuneCountInString(report.Text)),
		zap.String("response_preview", logger.TruncateForLog(report.Text, a.maxLogLen)),
	)

	return &Consultation{
		SearchQuery: query,
		Report:      strings.TrimSpace(report.Text),
		Jobs:        jobs,
	}, nil
}

func jobsContext(jobs []docstore.Record) string {
	if len(jobs) == 0 {
		return noMatches
	}
	parts := make([]string, 0, len(jobs))
	for i, job := range jobs {
		parts = append(parts, fmt.Sprintf("Job %d:\n%s", i+1, strings.TrimSpace(job.Content)))
	}
	return strings.Join(parts, "\n\n")
}

// cleanQuery keeps the first non-empty line of the model output without
// surrounding quotes or a label.
func cleanQuery(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "Search Query:")
		line = strings.Trim(strings.TrimSpace(line), "\"'`")
		if line != "" {
			return line
		}
	}
	return ""
}
