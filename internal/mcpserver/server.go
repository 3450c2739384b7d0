// Package mcpserver exposes the assistant as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents/advisor"
	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/router"
)

const (
	Name = "career-assistant"

	ToolAsk         = "ask_career_assistant"
	ToolMatchCV     = "match_cv"
	ToolCoverLetter = "write_cover_letter"
)

type Chatter interface {
	Answer(ctx context.Context, query string, h history.History) router.RoutedAnswer
}

type Matcher interface {
	Match(ctx context.Context, cvText, jobDescription string) *advisor.MatchAnalysis
}

type LetterWriter interface {
	Write(ctx context.Context, cvText, jobDescription string) (string, error)
}

// Tools are the components behind the tools. Nil components are not
// registered.
type Tools struct {
	Chat    Chatter
	Matcher Matcher
	Letters LetterWriter
}

type Server struct {
	tools  Tools
	logger *zap.Logger
	srv    *mcp.Server
}

func New(version string, tools Tools, log *zap.Logger) *Server {
	s := &Server{
		tools:  tools,
		logger: logger.WithFields(log, zap.String("component", "mcp")),
		srv:    mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil),
	}

	if tools.Chat != nil {
		s.srv.AddTool(&mcp.Tool{
			Name:        ToolAsk,
			Description: "Answer a career question. Uses the job database and the job description index when needed.",
			InputSchema: objectSchema(map[string]any{
				"query":   stringProp("The question to answer."),
				"history": map[string]any{"type": "array", "description": "Earlier turns as {role, content} objects."},
			}, "query"),
		}, s.ask)
	}
	if tools.Matcher != nil {
		s.srv.AddTool(&mcp.Tool{
			Name:        ToolMatchCV,
			Description: "Score how well a CV fits a job description and list strengths and gaps.",
			InputSchema: objectSchema(map[string]any{
				"cv_text":         stringProp("Plain text of the CV."),
				"job_description": stringProp("The job description."),
			}, "cv_text", "job_description"),
		}, s.match)
	}
	if tools.Letters != nil {
		s.srv.AddTool(&mcp.Tool{
			Name:        ToolCoverLetter,
			Description: "Write a cover letter for a job based on a CV.",
			InputSchema: objectSchema(map[string]any{
				"cv_text":         stringProp("Plain text of the CV."),
				"job_description": stringProp("The job description."),
			}, "job_description"),
		}, s.letter)
	}

	return s
}

// Run serves over stdin and stdout until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting mcp server on stdio")
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

type askArgs struct {
	Query   string `json:"query"`
	History any    `json:"history"`
}

type cvArgs struct {
	CVText         string `json:"cv_text"`
	JobDescription string `json:"job_description"`
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args askArgs
	if err := decode(req, &args); err != nil {
		return toolError(err), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return toolError(errors.New("query is required")), nil
	}

	s.logger.Info("tool called", zap.String("tool", ToolAsk), zap.String("query", logger.TruncateForLog(args.Query, 80)))
	answer := s.tools.Chat.Answer(ctx, args.Query, history.Normalize(args.History))
	return textResult(answer.Text), nil
}

func (s *Server) match(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args cvArgs
	if err := decode(req, &args); err != nil {
		return toolError(err), nil
	}
	if strings.TrimSpace(args.CVText) == "" || strings.TrimSpace(args.JobDescription) == "" {
		return toolError(errors.New("cv_text and job_description are required")), nil
	}

	s.logger.Info("tool called", zap.String("tool", ToolMatchCV))
	analysis := s.tools.Matcher.Match(ctx, args.CVText, args.JobDescription)
	raw, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return toolError(err), nil
	}
	return textResult(string(raw)), nil
}

func (s *Server) letter(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args cvArgs
	if err := decode(req, &args); err != nil {
		return toolError(err), nil
	}

	s.logger.Info("tool called", zap.String("tool", ToolCoverLetter))
	letter, err := s.tools.Letters.Write(ctx, args.CVText, args.JobDescription)
	if err != nil {
		s.logger.Warn("cover letter failed", zap.Error(err))
		return toolError(err), nil
	}
	return textResult(letter), nil
}

func decode(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func toolError(err error) *mcp.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	req := make([]any, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]any{"type": "object", "properties": props, "required": req}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
