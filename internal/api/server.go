// Package api serves the career assistant over HTTP.
package api

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents/advisor"
	"github.com/spigell/career-assistant/internal/agents/interview"
	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/ingestion"
	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/router"
)

const (
	serviceName           = "career-assistant"
	defaultMaxUploadBytes = 10 << 20
	statusSuccess         = "success"
)

// Chatter answers chat messages.
type Chatter interface {
	Answer(ctx context.Context, query string, h history.History) router.RoutedAnswer
	Stream(ctx context.Context, query string, h history.History) iter.Seq[router.Event]
}

// CVAdvisor reviews CVs.
type CVAdvisor interface {
	Consult(ctx context.Context, cvText string) (*advisor.Consultation, error)
	Match(ctx context.Context, cvText, jobDescription string) *advisor.MatchAnalysis
}

// LetterWriter drafts cover letters.
type LetterWriter interface {
	Write(ctx context.Context, cvText, jobDescription string) (string, error)
}

// Interviewer runs mock interviews.
type Interviewer interface {
	Reply(ctx context.Context, s *interview.Session, answer string) (string, error)
	Evaluate(ctx context.Context, s *interview.Session) (*interview.Evaluation, error)
}

// Extractor reads text from uploaded documents.
type Extractor interface {
	Extract(ctx context.Context, doc ingestion.Document) (string, error)
}

// Components are the services behind the endpoints. Any of them may be nil;
// their endpoints then answer 503.
type Components struct {
	Chat        Chatter
	Advisor     CVAdvisor
	Letters     LetterWriter
	Interviewer Interviewer
	Extractor   Extractor
	// ProviderConfigured reports whether a model API key was found.
	ProviderConfigured bool
}

type Config struct {
	Listen         string
	MaxUploadBytes int
	Version        string
}

type Server struct {
	cfg        Config
	components Components
	logger     *zap.Logger
	app        *fiber.App
}

func New(cfg Config, components Components, log *zap.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		cfg:        cfg,
		components: components,
		logger:     logger.WithFields(log, zap.String("component", "api")),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Uploads arrive base64 encoded inside JSON.
		BodyLimit:    cfg.MaxUploadBytes/3*4 + 64<<10,
		ErrorHandler: s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(cors.New())
	s.app.Use(s.logRequests)

	s.app.Get("/", s.handleRoot)
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/chat", s.handleChat)
	s.app.Post("/chat/stream", s.handleChatStream)
	s.app.Post("/cv/analyze", s.handleAnalyzeCV)
	s.app.Post("/cv/match", s.handleMatchCV)
	s.app.Post("/cover-letter/generate", s.handleCoverLetter)
	s.app.Get("/interview/start", s.handleInterviewStart)
	s.app.Post("/interview/chat", s.handleInterviewChat)
	s.app.Post("/interview/evaluate", s.handleInterviewEvaluate)

	return s
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("starting api server", zap.String("listen", s.cfg.Listen))
	return s.app.Listen(s.cfg.Listen)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(errorResponse{Error: msg})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		status = e.Code
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return s.fail(c, status, err.Error())
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request served",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		logger.Latency(time.Since(start)),
	)
	return err
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": serviceName,
		"version": s.cfg.Version,
		"status":  "online",
		"agents": fiber.Map{
			"router":       activity(s.components.Chat != nil),
			"advisor":      activity(s.components.Advisor != nil),
			"cover_letter": activity(s.components.Letters != nil),
			"interview":    activity(s.components.Interviewer != nil),
		},
		"endpoints": fiber.Map{
			"health":             "GET /health",
			"chat":               "POST /chat",
			"chat_stream":        "POST /chat/stream",
			"cv_analysis":        "POST /cv/analyze",
			"cv_match":           "POST /cv/match",
			"cover_letter":       "POST /cover-letter/generate",
			"interview_start":    "GET /interview/start",
			"interview_chat":     "POST /interview/chat",
			"interview_evaluate": "POST /interview/evaluate",
		},
		"note": "Send CV files base64 encoded in JSON bodies.",
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	provider := "missing"
	if s.components.ProviderConfigured {
		provider = "configured"
	}
	components := fiber.Map{
		"api_server":         "healthy",
		"provider_key":       provider,
		"router":             activity(s.components.Chat != nil),
		"advisor_agent":      activity(s.components.Advisor != nil),
		"cover_letter_agent": activity(s.components.Letters != nil),
		"interview_agent":    activity(s.components.Interviewer != nil),
		"cv_extractor":       activity(s.components.Extractor != nil),
	}

	active := 0
	for _, v := range components {
		switch v {
		case "active", "healthy", "configured":
			active++
		}
	}

	status := "degraded"
	if s.components.ProviderConfigured && active >= 3 {
		status = "healthy"
	}

	return c.JSON(fiber.Map{
		"status":     status,
		"details":    fmt.Sprintf("%d/%d components active", active, len(components)),
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func activity(ok bool) string {
	if ok {
		return "active"
	}
	return "inactive"
}
