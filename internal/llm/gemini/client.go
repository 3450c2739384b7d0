package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

const (
	ProviderName = "gemini"

	BackendGemini = "gemini"
	BackendVertex = "vertex"

	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
	defaultMaxRetries     = 2
	defaultMaxLogLength   = 200
)

var errEmptyResponse = errors.New("gemini api returned empty response")

// models is the subset of genai.Models the generator relies on.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config selects the backend and models.
type Config struct {
	Backend             string
	APIKey              string
	Project             string
	Location            string
	Model               string
	EmbeddingModel      string
	EmbeddingDimensions int
	MaxRetries          int
	MaxLogLength        int
}

// Generator implements llm.Generator and llm.Embedder on top of the Google
// GenAI SDK.
type Generator struct {
	models         models
	model          string
	embeddingModel string
	dimensions     int
	maxRetries     int
	maxLogLength   int
	logger         *zap.Logger
}

// NewGenerator creates a Generator for the Gemini API or Vertex AI backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	clientCfg := &genai.ClientConfig{}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendGemini:
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("gemini api key is required")
		}
		clientCfg.APIKey = apiKey
		clientCfg.Backend = genai.BackendGeminiAPI
	case BackendVertex:
		if strings.TrimSpace(cfg.Project) == "" || strings.TrimSpace(cfg.Location) == "" {
			return nil, errors.New("vertex backend requires project and location")
		}
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("unknown gemini backend %q", cfg.Backend)
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, log), nil
}

func newGenerator(m models, cfg Config, log *zap.Logger) *Generator {
	g := &Generator{
		models:         m,
		model:          strings.TrimSpace(cfg.Model),
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		dimensions:     cfg.EmbeddingDimensions,
		maxRetries:     cfg.MaxRetries,
		maxLogLength:   cfg.MaxLogLength,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.embeddingModel == "" {
		g.embeddingModel = defaultEmbeddingModel
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.maxLogLength <= 0 {
		g.maxLogLength = defaultMaxLogLength
	}
	g.logger = logger.WithCommonFields(log, ProviderName, g.model)
	return g
}

// Model returns the generation model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate sends the request and returns the joined candidate text.
func (g *Generator) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	contents, config := buildRequest(req)
	g.logPrompt(req)

	var resp *genai.GenerateContentResponse
	err := g.withRetry(ctx, "generate", func() error {
		var err error
		resp, err = g.models.GenerateContent(ctx, g.model, contents, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	output := responseText(resp)
	if output == "" {
		return nil, errEmptyResponse
	}

	usage := usageOf(resp)
	g.logger.Debug("gemini response",
		zap.String("response_preview", logger.TruncateForLog(output, g.maxLogLength)),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
	)

	return &llm.Response{Text: output, Usage: usage}, nil
}

// Stream yields text fragments as they arrive. A transient failure before the
// first fragment is retried; after that it is returned to the consumer.
func (g *Generator) Stream(ctx context.Context, req *llm.Request) iter.Seq2[*llm.Chunk, error] {
	return func(yield func(*llm.Chunk, error) bool) {
		if err := req.Validate(); err != nil {
			yield(nil, err)
			return
		}
		contents, config := buildRequest(req)
		g.logPrompt(req)

		for attempt := 1; ; attempt++ {
			var (
				usage     llm.Usage
				emitted   bool
				streamErr error
			)

			for resp, err := range g.models.GenerateContentStream(ctx, g.model, contents, config) {
				if err != nil {
					streamErr = err
					break
				}
				if resp.UsageMetadata != nil {
					usage = usageOf(resp)
				}
				text := chunkText(resp)
				if text == "" {
					continue
				}
				emitted = true
				if !yield(&llm.Chunk{Text: text}, nil) {
					return
				}
			}

			if streamErr == nil {
				if !emitted {
					yield(nil, errEmptyResponse)
					return
				}
				yield(&llm.Chunk{Usage: &usage}, nil)
				return
			}

			delay, retry := retryDelay(streamErr, attempt)
			if emitted || !retry || attempt >= g.maxRetries {
				yield(nil, fmt.Errorf("stream content: %w", streamErr))
				return
			}
			g.logger.Warn("retrying gemini stream", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(streamErr))
			if err := waitFor(ctx, delay); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Embed returns one vector per text using the embedding model.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Role:  string(genai.RoleUser),
			Parts: []*genai.Part{{Text: text}},
		})
	}

	config := &genai.EmbedContentConfig{}
	if g.dimensions > 0 {
		dims := int32(g.dimensions)
		config.OutputDimensionality = &dims
	}

	var resp *genai.EmbedContentResponse
	err := g.withRetry(ctx, "embed", func() error {
		var err error
		resp, err = g.models.EmbedContent(ctx, g.embeddingModel, contents, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("embed content: expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("embed content: empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (g *Generator) logPrompt(req *llm.Request) {
	if ce := g.logger.Check(zap.DebugLevel, "gemini request"); ce != nil {
		var prompt strings.Builder
		for _, msg := range req.Messages {
			for _, part := range msg.Parts {
				prompt.WriteString(part.Text)
			}
		}
		ce.Write(
			zap.Int("messages", len(req.Messages)),
			zap.String("prompt_preview", logger.TruncateForLog(prompt.String(), g.maxLogLength)),
		)
	}
}

func buildRequest(req *llm.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := &genai.Content{Role: string(genai.RoleUser)}
		if msg.Role == llm.RoleAssistant {
			content.Role = string(genai.RoleModel)
		}
		for _, part := range msg.Parts {
			switch {
			case len(part.Data) > 0:
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: part.MIMEType, Data: part.Data},
				})
			case part.Text != "":
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}

	config := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	return contents, config
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

// chunkText keeps whitespace intact so fragments concatenate exactly.
// Thought parts are model deliberation and never reach the caller.
func chunkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		builder.WriteString(part.Text)
	}
	return builder.String()
}

func usageOf(resp *genai.GenerateContentResponse) llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return llm.Usage{}
	}
	return llm.Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}
