// Package llmtest provides a scripted Generator for tests.
package llmtest

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/spigell/career-assistant/internal/llm"
)

// Reply is what the fake answers for one call.
type Reply struct {
	Text  string
	Usage llm.Usage
	Err   error
	// StreamErr fails a stream after its text has been yielded.
	StreamErr error
}

// Generator answers every request through Respond and records the requests.
type Generator struct {
	Respond func(req *llm.Request) Reply

	mu    sync.Mutex
	calls []*llm.Request
}

// Static returns a generator that always replies with text.
func Static(text string, usage llm.Usage) *Generator {
	return &Generator{Respond: func(*llm.Request) Reply {
		return Reply{Text: text, Usage: usage}
	}}
}

func (g *Generator) reply(req *llm.Request) Reply {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.Respond == nil {
		return Reply{}
	}
	return g.Respond(req)
}

// Generate implements llm.Generator.
func (g *Generator) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	r := g.reply(req)
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.Response{Text: r.Text, Usage: r.Usage}, nil
}

// Stream implements llm.Generator by yielding the reply word by word.
func (g *Generator) Stream(ctx context.Context, req *llm.Request) iter.Seq2[*llm.Chunk, error] {
	return func(yield func(*llm.Chunk, error) bool) {
		r := g.reply(req)
		if r.Err != nil {
			yield(nil, r.Err)
			return
		}
		for _, fragment := range Fragments(r.Text) {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if !yield(&llm.Chunk{Text: fragment}, nil) {
				return
			}
		}
		if r.StreamErr != nil {
			yield(nil, r.StreamErr)
			return
		}
		usage := r.Usage
		yield(&llm.Chunk{Usage: &usage}, nil)
	}
}

// Calls returns the recorded requests.
func (g *Generator) Calls() []*llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*llm.Request(nil), g.calls...)
}

// Fragments splits text after every space so the pieces concatenate back to
// the original string.
func Fragments(text string) []string {
	var out []string
	for text != "" {
		idx := strings.IndexByte(text, ' ')
		if idx < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:idx+1])
		text = text[idx+1:]
	}
	return out
}

// PromptText joins every text part of the request, system prompt first.
func PromptText(req *llm.Request) string {
	var b strings.Builder
	b.WriteString(req.System)
	for _, msg := range req.Messages {
		for _, part := range msg.Parts {
			b.WriteString("\n")
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
