package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents/advisor"
	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/router"
)

type fakeChat struct{ turns int }

func (f *fakeChat) Answer(_ context.Context, query string, h history.History) router.RoutedAnswer {
	f.turns = len(h)
	return router.RoutedAnswer{Text: "answer: " + query}
}

type fakeMatcher struct{}

func (fakeMatcher) Match(context.Context, string, string) *advisor.MatchAnalysis {
	return &advisor.MatchAnalysis{Score: 64, Summary: "Partial fit"}
}

type fakeLetters struct{ err error }

func (f fakeLetters) Write(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Dear team", nil
}

func connect(t *testing.T, tools Tools) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	srv := New("test", tools, zap.NewNop())
	ss, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestOnlyConfiguredToolsAreListed(t *testing.T) {
	cs := connect(t, Tools{Chat: &fakeChat{}})

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, ToolAsk, res.Tools[0].Name)
}

func TestAsk(t *testing.T) {
	chat := &fakeChat{}
	cs := connect(t, Tools{Chat: chat})

	text, isErr := call(t, cs, ToolAsk, map[string]any{
		"query":   "remote Go jobs?",
		"history": []any{map[string]any{"role": "user", "content": "hi"}},
	})
	assert.False(t, isErr)
	assert.Equal(t, "answer: remote Go jobs?", text)
	assert.Equal(t, 1, chat.turns)

	text, isErr = call(t, cs, ToolAsk, map[string]any{"query": " "})
	assert.True(t, isErr)
	assert.Equal(t, "query is required", text)
}

func TestMatchCV(t *testing.T) {
	cs := connect(t, Tools{Matcher: fakeMatcher{}})

	text, isErr := call(t, cs, ToolMatchCV, map[string]any{"cv_text": "Go", "job_description": "Go developer"})
	require.False(t, isErr)

	var got advisor.MatchAnalysis
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, 64.0, got.Score)
	assert.Equal(t, "Partial fit", got.Summary)

	_, isErr = call(t, cs, ToolMatchCV, map[string]any{"cv_text": "Go"})
	assert.True(t, isErr)
}

func TestWriteCoverLetter(t *testing.T) {
	cs := connect(t, Tools{Letters: fakeLetters{}})
	text, isErr := call(t, cs, ToolCoverLetter, map[string]any{"job_description": "Platform engineer"})
	assert.False(t, isErr)
	assert.Equal(t, "Dear team", text)

	cs = connect(t, Tools{Letters: fakeLetters{err: errors.New("too short")}})
	text, isErr = call(t, cs, ToolCoverLetter, map[string]any{"job_description": "x"})
	assert.True(t, isErr)
	assert.Equal(t, "too short", text)
}
