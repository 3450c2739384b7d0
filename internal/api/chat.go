package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/logger"
)

const maxMessageRunes = 5000

type chatRequest struct {
	Message string `json:"message"`
	// History is a list of {role, content} objects or a plain transcript.
	History any `json:"history"`
}

type chatResponse struct {
	Query    string `json:"query"`
	Response string `json:"response"`
	Status   string `json:"status"`
}

func (r *chatRequest) validate() error {
	n := utf8.RuneCountInString(strings.TrimSpace(r.Message))
	if n == 0 {
		return fmt.Errorf("message is required")
	}
	if utf8.RuneCountInString(r.Message) > maxMessageRunes {
		return fmt.Errorf("message must be at most %d characters", maxMessageRunes)
	}
	return nil
}

func (s *Server) parseChat(c *fiber.Ctx) (*chatRequest, error) {
	var req chatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return nil, s.fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return nil, s.fail(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	return &req, nil
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	if s.components.Chat == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "chat service unavailable: router is not configured")
	}
	req, err := s.parseChat(c)
	if req == nil {
		return err
	}

	s.logger.Info("chat", zap.String("message", logger.TruncateForLog(req.Message, 80)))
	answer := s.components.Chat.Answer(c.UserContext(), req.Message, history.Normalize(req.History))

	return c.JSON(chatResponse{
		Query:    req.Message,
		Response: answer.Text,
		Status:   statusSuccess,
	})
}

// handleChatStream writes one router event per line as NDJSON.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	if s.components.Chat == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "chat service unavailable: router is not configured")
	}
	req, err := s.parseChat(c)
	if req == nil {
		return err
	}

	h := history.Normalize(req.History)
	chat := s.components.Chat

	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Cache-Control", "no-cache")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The request context ends with the handler, so the stream gets its own.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		enc := json.NewEncoder(w)
		for event := range chat.Stream(ctx, req.Message, h) {
			if err := enc.Encode(event); err != nil {
				s.logger.Warn("failed to encode event", zap.Error(err))
				return
			}
			if err := w.Flush(); err != nil {
				s.logger.Debug("client went away", zap.Error(err))
				return
			}
		}
	}))
	return nil
}
