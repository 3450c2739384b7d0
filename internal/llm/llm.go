// Package llm defines the Generation Service contract shared by the router,
// the store gateways and the task agents.
package llm

import (
	"context"
	"errors"
	"iter"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyRequest is returned when a request carries no content at all.
var ErrEmptyRequest = errors.New("request has no content")

// Part is one block of a message. Data with a MIMEType is an inline file
// (an image or a PDF page set) used by the document fallback path.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// Message is a single conversational message.
type Message struct {
	Role  string
	Parts []Part
}

// Request is a provider independent generation request.
type Request struct {
	System      string
	Messages    []Message
	Temperature *float32
	// JSON asks the provider for a JSON-only response.
	JSON bool
}

// Usage counts tokens consumed by one or more model calls.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add returns the sum of both usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Response is the result of a blocking generation call.
type Response struct {
	Text  string
	Usage Usage
}

// Chunk is one streamed fragment. Usage is only set on the chunk that
// finishes the stream.
type Chunk struct {
	Text  string
	Usage *Usage
}

// Generator invokes a hosted language model.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Stream yields fragments in generation order. Breaking out of the range
	// loop abandons the underlying call.
	Stream(ctx context.Context, req *Request) iter.Seq2[*Chunk, error]
}

// Embedder turns texts into vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Text builds a text part.
func Text(s string) Part {
	return Part{Text: s}
}

// Blob builds an inline data part.
func Blob(mimeType string, data []byte) Part {
	return Part{MIMEType: mimeType, Data: data}
}

// UserText builds a user message holding a single text part.
func UserText(s string) Message {
	return Message{Role: RoleUser, Parts: []Part{Text(s)}}
}

// AssistantText builds an assistant message holding a single text part.
func AssistantText(s string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{Text(s)}}
}

// Prompt is a shortcut for a single-turn text request.
func Prompt(system, prompt string) *Request {
	return &Request{System: system, Messages: []Message{UserText(prompt)}}
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(t float32) *float32 {
	return &t
}

// Validate reports whether the request has anything to send.
func (r *Request) Validate() error {
	if r == nil {
		return ErrEmptyRequest
	}
	for _, msg := range r.Messages {
		for _, part := range msg.Parts {
			if strings.TrimSpace(part.Text) != "" || len(part.Data) > 0 {
				return nil
			}
		}
	}
	return ErrEmptyRequest
}

// Collect drains a stream into a single response.
func Collect(stream iter.Seq2[*Chunk, error]) (*Response, error) {
	var (
		builder strings.Builder
		usage   Usage
	)
	for chunk, err := range stream {
		if err != nil {
			return nil, err
		}
		builder.WriteString(chunk.Text)
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}
	return &Response{Text: builder.String(), Usage: usage}, nil
}
