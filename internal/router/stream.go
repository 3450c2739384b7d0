package router

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/lang"
	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

// Kind tags a stream event.
type Kind string

const (
	// KindThought describes tool usage. It is never part of the answer.
	KindThought Kind = "thought"
	// KindContent is a fragment of the final answer.
	KindContent Kind = "content"
	// KindMetadata closes a completed stream.
	KindMetadata Kind = "metadata"
)

// Event is one element of a routing stream.
type Event struct {
	Kind     Kind      `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Tool     string    `json:"tool,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Stream answers query as a sequence of events. Thought events for a tool
// precede any content, content fragments concatenate to the answer, and a
// single metadata event comes last. Failures end the stream with an apology
// content event. If the consumer stops early the work is cancelled and no
// metadata is produced.
func (r *Router) Stream(ctx context.Context, query string, h history.History) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		start := r.now()
		meter := &llm.Meter{}
		ctx = llm.WithMeter(ctx, meter)

		language := r.detector.Detect(query)
		log := r.logger.With(zap.String(logger.FieldLanguage, language.Code))

		if !r.run(ctx, query, h, language, log, yield) {
			log.Debug("stream stopped by consumer")
			return
		}

		usage := meter.Usage()
		elapsed := r.now().Sub(start)
		log.Info("query answered",
			logger.Latency(elapsed),
			zap.Int("input_tokens", usage.InputTokens),
			zap.Int("output_tokens", usage.OutputTokens),
			zap.Int("model_calls", meter.Calls()),
		)
		yield(Event{Kind: KindMetadata, Metadata: &Metadata{
			LatencySeconds: elapsed.Seconds(),
			InputTokens:    usage.InputTokens,
			OutputTokens:   usage.OutputTokens,
		}})
	}
}

// run produces every event except metadata. It returns false when the
// consumer is gone.
func (r *Router) run(ctx context.Context, query string, h history.History, language lang.Language, log *zap.Logger, yield func(Event) bool) bool {
	emitted := false
	fail := func(err error) bool {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return false
		}
		log.Error("query failed", zap.Error(err))
		text := Apology(language, err)
		if emitted {
			// Keep the apology apart from the partial answer.
			text = "\n\n" + text
		}
		return yield(Event{Kind: KindContent, Text: text})
	}

	if strings.TrimSpace(query) == "" {
		return fail(ErrEmptyQuery)
	}

	intent := r.classify(ctx, query, h, log)
	log = log.With(zap.String(logger.FieldIntent, intent.String()))
	log.Info("query routed", zap.String("query", logger.TruncateForLog(query, 80)))

	var calls []ToolInvocation
	for _, tool := range r.plan(intent) {
		if !yield(Event{Kind: KindThought, Tool: tool.Name(), Text: fmt.Sprintf("Using %s: %s", tool.Name(), query)}) {
			return false
		}

		started := r.now()
		output, err := tool.Invoke(ctx, query)
		if err != nil {
			return fail(fmt.Errorf("%s: %w", tool.Name(), err))
		}
		log.Info("tool step",
			zap.String(logger.FieldTool, tool.Name()),
			logger.Latency(r.now().Sub(started)),
			zap.Int("output_length", len(output)),
		)

		preview := logger.TruncateForLog(output, r.cfg.ThoughtPreview)
		if !yield(Event{Kind: KindThought, Tool: tool.Name(), Text: fmt.Sprintf("%s returned: %s", tool.Name(), preview)}) {
			return false
		}
		calls = append(calls, ToolInvocation{Tool: tool.Name(), Input: query, Output: output})
	}

	for chunk, err := range r.gen.Stream(ctx, r.composeRequest(query, h, language, calls)) {
		if err != nil {
			return fail(fmt.Errorf("compose answer: %w", err))
		}
		if chunk.Text == "" {
			continue
		}
		emitted = true
		if !yield(Event{Kind: KindContent, Text: chunk.Text}) {
			return false
		}
	}
	if !emitted {
		return fail(errEmptyAnswer)
	}
	return true
}
