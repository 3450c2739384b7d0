// Package coverletter drafts cover letters from a CV and a job description.
package coverletter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents"
	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

const (
	// MaxCVRunes bounds the CV text sent to the model.
	MaxCVRunes = 10000
	// MinJobDescriptionLength is the shortest accepted job description.
	MinJobDescriptionLength = 10

	missingCV = "No CV provided"
)

//go:embed prompt.md
var promptTemplate string

var (
	ErrJobDescriptionTooShort = fmt.Errorf("job description must be at least %d characters", MinJobDescriptionLength)
	errEmptyLetter            = errors.New("model returned an empty cover letter")
)

type Writer struct {
	gen    llm.Generator
	logger *zap.Logger
}

func New(gen llm.Generator, log *zap.Logger) (*Writer, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	return &Writer{gen: gen, logger: logger.ForAgent(log, "cover_letter")}, nil
}

// Write returns a cover letter in markdown.
func (w *Writer) Write(ctx context.Context, cvText, jobDescription string) (string, error) {
	jobDescription = strings.TrimSpace(jobDescription)
	if utf8.RuneCountInString(jobDescription) < MinJobDescriptionLength {
		return "", ErrJobDescriptionTooShort
	}

	req := llm.Prompt("", agents.Render(promptTemplate, map[string]string{
		"CV":  agents.OrDefault(agents.Clip(strings.TrimSpace(cvText), MaxCVRunes), missingCV),
		"JOB": jobDescription,
	}))
	req.Temperature = llm.Temperature(0.7)

	resp, err := w.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate cover letter: %w", err)
	}

	letter := strings.TrimSpace(resp.Text)
	if letter == "" {
		return "", errEmptyLetter
	}

	w.logger.Info("cover letter written", zap.Int("length", utf8.RuneCountInString(letter)))
	return letter, nil
}
