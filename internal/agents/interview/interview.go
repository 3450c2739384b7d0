// Package interview runs mock job interviews.
package interview

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents"
	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/lang"
	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

// FirstQuestion opens every session.
const FirstQuestion = "Tell me about yourself and your professional background."

const (
	defaultJob        = "General position"
	defaultCV         = "No CV provided"
	sameLanguage      = "the same language as the candidate"
	maxCVRunes        = 10000
	interviewerPrefix = "Interviewer"
	candidatePrefix   = "Candidate"
)

var (
	//go:embed prompts/reply.md
	replyPrompt string
	//go:embed prompts/evaluate.md
	evaluatePrompt string

	scorePattern = regexp.MustCompile(`(?i)OVERALL SCORE\s*:\s*\[?\s*(\d{1,3})`)

	stopWords = map[string]struct{}{"exit": {}, "stop": {}, "quit": {}, "bye": {}}
)

var (
	ErrEmptyAnswer = errors.New("candidate answer is empty")
	ErrNoAnswers   = errors.New("interview has no candidate answers to evaluate")
)

// Detector names the language of a text.
type Detector interface {
	Detect(text string) lang.Language
}

// Session is the state of one interview. Interviewer turns use the assistant
// role and candidate turns the user role.
type Session struct {
	JobDescription string          `json:"job_description"`
	CVText         string          `json:"cv_text"`
	History        history.History `json:"conversation_history"`
}

// NewSession starts a session with the opening question already asked.
func NewSession(jobDescription, cvText string) *Session {
	return &Session{
		JobDescription: jobDescription,
		CVText:         cvText,
		History:        history.History{history.Assistant(FirstQuestion)},
	}
}

// Evaluation is the end-of-session report.
type Evaluation struct {
	Markdown string `json:"evaluation"`
	Score    int    `json:"score"`
	// Scored is false when the report carried no readable score.
	Scored bool `json:"-"`
}

type Interviewer struct {
	gen      llm.Generator
	detector Detector
	logger   *zap.Logger
}

// New builds an Interviewer. detector may be nil, in which case the model is
// asked to mirror the candidate's language on its own.
func New(gen llm.Generator, detector Detector, log *zap.Logger) (*Interviewer, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	return &Interviewer{gen: gen, detector: detector, logger: logger.ForAgent(log, "interview")}, nil
}

// Reply gives feedback on the candidate's answer and asks the next question.
// Both turns are appended to the session.
func (i *Interviewer) Reply(ctx context.Context, s *Session, answer string) (string, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	language := i.languageOf(answer)
	req := llm.Prompt("", agents.Render(replyPrompt, map[string]string{
		"JOB":      agents.OrDefault(s.JobDescription, defaultJob),
		"CV":       agents.OrDefault(agents.Clip(s.CVText, maxCVRunes), defaultCV),
		"HISTORY":  transcript(s.History),
		"ANSWER":   answer,
		"LANGUAGE": language,
	}))
	req.Temperature = llm.Temperature(0.7)

	resp, err := i.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("interviewer reply: %w", err)
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return "", errors.New("interviewer reply: model returned an empty response")
	}

	s.History = s.History.Append(history.User(answer), history.Assistant(reply))
	i.logger.Debug("interviewer replied",
		zap.String(logger.FieldLanguage, language),
		zap.Int("turns", len(s.History)),
	)
	return reply, nil
}

// Evaluate scores the whole session.
func (i *Interviewer) Evaluate(ctx context.Context, s *Session) (*Evaluation, error) {
	var answers []string
	for _, turn := range s.History {
		if turn.Role == history.RoleUser {
			answers = append(answers, turn.Content)
		}
	}
	if len(answers) == 0 {
		return nil, ErrNoAnswers
	}

	req := llm.Prompt("", agents.Render(evaluatePrompt, map[string]string{
		"JOB":      agents.OrDefault(s.JobDescription, defaultJob),
		"CV":       agents.OrDefault(agents.Clip(s.CVText, maxCVRunes), defaultCV),
		"HISTORY":  transcript(s.History),
		"LANGUAGE": i.languageOf(strings.Join(answers, "\n")),
	}))
	req.Temperature = llm.Temperature(0.3)

	resp, err := i.gen.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("evaluate interview: %w", err)
	}

	eval := &Evaluation{Markdown: strings.TrimSpace(resp.Text)}
	eval.Score, eval.Scored = ParseScore(eval.Markdown)
	if !eval.Scored {
		i.logger.Warn("evaluation has no overall score")
	}
	i.logger.Info("interview evaluated", zap.Int("score", eval.Score), zap.Int("answers", len(answers)))
	return eval, nil
}

func (i *Interviewer) languageOf(text string) string {
	if i.detector == nil {
		return sameLanguage
	}
	return i.detector.Detect(text).Name
}

// ParseScore reads the overall score from an evaluation, clamped to 0..100.
func ParseScore(markdown string) (int, bool) {
	m := scorePattern.FindStringSubmatch(markdown)
	if m == nil {
		return 0, false
	}
	score, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return min(score, 100), true
}

// IsStop reports whether the candidate wants to end the interview.
func IsStop(answer string) bool {
	_, ok := stopWords[strings.ToLower(strings.TrimSpace(answer))]
	return ok
}

func transcript(h history.History) string {
	if len(h) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(h))
	for _, turn := range h {
		who := candidatePrefix
		if turn.Role == history.RoleAssistant {
			who = interviewerPrefix
		}
		lines = append(lines, who+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}
