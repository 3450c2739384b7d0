package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents/advisor"
	"github.com/spigell/career-assistant/internal/agents/coverletter"
	"github.com/spigell/career-assistant/internal/agents/interview"
	"github.com/spigell/career-assistant/internal/api"
	"github.com/spigell/career-assistant/internal/docstore"
	"github.com/spigell/career-assistant/internal/ingestion"
	"github.com/spigell/career-assistant/internal/lang"
	"github.com/spigell/career-assistant/internal/llm/gemini"
	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/mcpserver"
	"github.com/spigell/career-assistant/internal/router"
	"github.com/spigell/career-assistant/internal/secrets"
	"github.com/spigell/career-assistant/internal/sqlstore"
)

// setup builds the logger and reads the config. Failures are fatal.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting", zap.String("app", app), zap.String("version", version))
	return logger, config
}

// components is everything a command may need. Fields are nil when their
// dependencies are not configured.
type components struct {
	gen         *gemini.Generator
	detector    *lang.Detector
	docs        *docstore.Store
	structured  *sqlstore.Store
	router      *router.Router
	advisor     *advisor.Advisor
	letters     *coverletter.Writer
	interviewer *interview.Interviewer
	extractor   *ingestion.Extractor

	closers []io.Closer
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i].Close()
	}
}

// buildComponents wires the components from the config. Only a broken
// configuration is an error; a missing provider key or store leaves the
// depending components nil.
func buildComponents(ctx context.Context, cfg *Config, log *zap.Logger) (*components, error) {
	c := &components{}

	detector, err := lang.NewDetector(cfg.Router.Languages...)
	if err != nil {
		return nil, fmt.Errorf("building language detector: %w", err)
	}
	c.detector = detector

	gen, err := newGenerator(ctx, cfg.Provider, log)
	if err != nil {
		return nil, err
	}
	c.extractor = ingestion.NewExtractor(nil, log)
	if gen == nil {
		log.Warn("model provider is not configured, agents are disabled",
			zap.String("hint", "set provider.api-key-file or GEMINI_API_KEY"),
		)
		return c, nil
	}
	c.gen = gen
	c.extractor = ingestion.NewExtractor(gen, log)

	if err := ensureDir(cfg.Stores.VectorsDB); err != nil {
		return nil, err
	}
	docs, err := docstore.Open(cfg.Stores.VectorsDB, gen, cfg.Provider.EmbeddingDimensions, log)
	if err != nil {
		log.Warn("document store is unavailable", zap.String("path", cfg.Stores.VectorsDB), zap.Error(err))
	} else {
		c.docs = docs
		c.closers = append(c.closers, docs)
	}

	structured, err := sqlstore.Open(cfg.Stores.JobsDB, gen, log,
		sqlstore.WithMaxRows(cfg.Stores.MaxRows),
		sqlstore.WithAttempts(cfg.Stores.SQLAttempts),
	)
	if err != nil {
		log.Warn("structured store is unavailable", zap.String("path", cfg.Stores.JobsDB), zap.Error(err),
			zap.String("hint", "run the ingest command first"),
		)
	} else {
		c.structured = structured
		c.closers = append(c.closers, structured)
	}

	intent, err := router.ParseIntentName(cfg.Router.DefaultIntent)
	if err != nil {
		return nil, fmt.Errorf("router.default-intent: %w", err)
	}

	var (
		structuredStore router.StructuredStore
		documentStore   router.DocumentStore
		searcher        advisor.Searcher
	)
	if c.structured != nil {
		structuredStore = c.structured
	}
	if c.docs != nil {
		documentStore = c.docs
		searcher = c.docs
	}

	if c.router, err = router.New(gen, structuredStore, documentStore, detector, router.Config{
		SearchLimit:    cfg.Router.SearchLimit,
		HistoryWindow:  cfg.Router.HistoryWindow,
		ThoughtPreview: cfg.Router.ThoughtPreview,
		DefaultIntent:  intent,
	}, log); err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}
	if c.advisor, err = advisor.New(gen, searcher, log); err != nil {
		return nil, fmt.Errorf("building advisor: %w", err)
	}
	if c.letters, err = coverletter.New(gen, log); err != nil {
		return nil, fmt.Errorf("building cover letter writer: %w", err)
	}
	if c.interviewer, err = interview.New(gen, detector, log); err != nil {
		return nil, fmt.Errorf("building interviewer: %w", err)
	}

	return c, nil
}

// newGenerator returns nil without an error when no API key is configured
// for the Gemini API backend.
func newGenerator(ctx context.Context, cfg *ProviderConfig, log *zap.Logger) (*gemini.Generator, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))

	var apiKey string
	if backend == "" || backend == gemini.BackendGemini {
		key, err := secrets.Optional(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, nil
		}
		apiKey = key
	}

	gen, err := gemini.NewGenerator(ctx, gemini.Config{
		Backend:             backend,
		APIKey:              apiKey,
		Project:             cfg.Project,
		Location:            cfg.Location,
		Model:               cfg.Model,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		MaxRetries:          cfg.MaxRetries,
		MaxLogLength:        cfg.MaxLogLength,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("building gemini generator: %w", err)
	}
	return gen, nil
}

// apiComponents converts to interfaces without leaking typed nil pointers.
func (c *components) apiComponents() api.Components {
	out := api.Components{ProviderConfigured: c.gen != nil}
	if c.router != nil {
		out.Chat = c.router
	}
	if c.advisor != nil {
		out.Advisor = c.advisor
	}
	if c.letters != nil {
		out.Letters = c.letters
	}
	if c.interviewer != nil {
		out.Interviewer = c.interviewer
	}
	if c.extractor != nil {
		out.Extractor = c.extractor
	}
	return out
}

func (c *components) mcpTools() mcpserver.Tools {
	var out mcpserver.Tools
	if c.router != nil {
		out.Chat = c.router
	}
	if c.advisor != nil {
		out.Matcher = c.advisor
	}
	if c.letters != nil {
		out.Letters = c.letters
	}
	return out
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
