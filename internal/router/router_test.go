package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/docstore"
	"github.com/spigell/career-assistant/internal/history"
	"github.com/spigell/career-assistant/internal/lang"
	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/llm/llmtest"
)

type fakeStructured struct {
	mu     sync.Mutex
	calls  []string
	ctxs   []context.Context
	answer string
	err    error
	// usage is recorded as if the store made its own model call.
	usage llm.Usage
}

func (f *fakeStructured) Answer(ctx context.Context, question string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, question)
	f.ctxs = append(f.ctxs, ctx)
	if f.err != nil {
		return "", f.err
	}
	if f.usage != (llm.Usage{}) {
		llm.MeterFrom(ctx).Record(f.usage)
	}
	return f.answer, nil
}

func (f *fakeStructured) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDocuments struct {
	mu      sync.Mutex
	calls   []string
	limits  []int
	records []docstore.Record
	err     error
}

func (f *fakeDocuments) Search(_ context.Context, query string, limit int) ([]docstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeDocuments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// wordDetector treats queries with common Indonesian words as Indonesian.
type wordDetector struct{}

func (wordDetector) Detect(text string) lang.Language {
	lower := strings.ToLower(text)
	for _, w := range []string{"berapa", "apa", "lowongan", "halo", "yang"} {
		if strings.Contains(lower, w) {
			return lang.Indonesian
		}
	}
	return lang.English
}

var (
	classifyUsage = llm.Usage{InputTokens: 10, OutputTokens: 1}
	composeUsage  = llm.Usage{InputTokens: 50, OutputTokens: 20}
)

func isClassification(req *llm.Request) bool {
	return strings.Contains(llmtest.PromptText(req), "Answer with exactly one word")
}

// label mimics a classifier model.
func label(query string) string {
	q := strings.ToLower(query)
	switch {
	case (strings.Contains(q, "how many") || strings.Contains(q, "berapa")) && strings.Contains(q, "skills"):
		return "BOTH"
	case strings.Contains(q, "how many") || strings.Contains(q, "berapa"):
		return "SQL"
	case strings.Contains(q, "hello") || strings.Contains(q, "halo"):
		return "CHAT"
	case strings.Contains(q, "skills") || strings.Contains(q, "keterampilan"):
		return "RAG."
	default:
		return "I am not sure"
	}
}

func queryOf(req *llm.Request) string {
	text := llmtest.PromptText(req)
	if i := strings.LastIndex(text, "User message"); i >= 0 {
		text = text[i:]
		if j := strings.Index(text, ": "); j >= 0 {
			text = text[j+2:]
		}
	}
	if i := strings.Index(text, "\nAnswer:"); i >= 0 {
		text = text[:i]
	}
	return text
}

// composer answers in the language requested by the system prompt.
func composer(req *llm.Request) llmtest.Reply {
	if strings.Contains(req.System, "answer in Indonesian") {
		return llmtest.Reply{Text: "Ada 2 lowongan Python di Jakarta.", Usage: composeUsage}
	}
	return llmtest.Reply{Text: "There are 2 Python jobs in Jakarta.", Usage: composeUsage}
}

func scriptedGenerator() *llmtest.Generator {
	return &llmtest.Generator{Respond: func(req *llm.Request) llmtest.Reply {
		if isClassification(req) {
			return llmtest.Reply{Text: label(queryOf(req)), Usage: classifyUsage}
		}
		return composer(req)
	}}
}

type fixture struct {
	gen        *llmtest.Generator
	structured *fakeStructured
	documents  *fakeDocuments
	router     *Router
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		gen:        scriptedGenerator(),
		structured: &fakeStructured{answer: "python_jobs: 2"},
		documents: &fakeDocuments{records: []docstore.Record{
			{ID: 1, Content: "Data Scientist: Python, SQL, statistics, communication."},
		}},
	}
	r, err := New(f.gen, f.structured, f.documents, wordDetector{}, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	f.router = r
	return f
}

func collect(r *Router, query string, h history.History) []Event {
	var events []Event
	for ev := range r.Stream(context.Background(), query, h) {
		events = append(events, ev)
	}
	return events
}

func contentOf(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Kind == KindContent {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func TestRouteDispatch(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		structured int
		documents  int
	}{
		{name: "casual greeting uses no gateway", query: "Hello, how are you?", structured: 0, documents: 0},
		{name: "count goes to structured store", query: "How many jobs require Python?", structured: 1, documents: 0},
		{name: "description goes to document store", query: "What skills are needed for a Data Scientist role?", structured: 0, documents: 1},
		{name: "compound uses both", query: "How many Python jobs are there and what skills do they need?", structured: 1, documents: 1},
		{name: "unclear falls back to documents", query: "Tell me something about remote work", structured: 0, documents: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})

			answer := f.router.Route(context.Background(), tt.query, nil)
			if strings.TrimSpace(answer) == "" {
				t.Fatalf("expected a non-empty answer")
			}
			if IsApology(answer) {
				t.Fatalf("unexpected apology: %q", answer)
			}
			if got := f.structured.count(); got != tt.structured {
				t.Fatalf("expected %d structured calls, got %d", tt.structured, got)
			}
			if got := f.documents.count(); got != tt.documents {
				t.Fatalf("expected %d document calls, got %d", tt.documents, got)
			}
		})
	}
}

func TestCompoundQueryComposesOneAnswer(t *testing.T) {
	f := newFixture(t, Config{SearchLimit: 5})

	events := collect(f.router, "How many Python jobs are there and what skills do they need?", nil)

	var tools []string
	for _, ev := range events {
		if ev.Kind == KindThought && strings.HasPrefix(ev.Text, "Using ") {
			tools = append(tools, ev.Tool)
		}
	}
	if strings.Join(tools, ",") != ToolStructured+","+ToolDocuments {
		t.Fatalf("expected structured then documents, got %v", tools)
	}
	if f.documents.limits[0] != 5 {
		t.Fatalf("expected search limit 5, got %d", f.documents.limits[0])
	}

	calls := f.gen.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected classification and a single composition, got %d calls", len(calls))
	}
	prompt := llmtest.PromptText(calls[1])
	for _, want := range []string{"python_jobs: 2", "Data Scientist: Python", "[" + ToolStructured + "]", "[" + ToolDocuments + "]"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("composition prompt is missing %q:\n%s", want, prompt)
		}
	}
}

func TestStreamMatchesRoute(t *testing.T) {
	queries := []string{
		"Hello, how are you?",
		"How many jobs require Python?",
		"What skills are needed for a Data Scientist role?",
		"Berapa lowongan Python yang ada?",
		"",
	}
	h := history.History{history.User("I am a backend developer"), history.Assistant("Nice to meet you")}

	for _, q := range queries {
		f := newFixture(t, Config{})
		streamed := contentOf(collect(f.router, q, h))
		routed := f.router.Route(context.Background(), q, h)
		if streamed != routed {
			t.Fatalf("stream and route differ for %q:\nstream: %q\nroute:  %q", q, streamed, routed)
		}
	}
}

func TestStreamOrderingAndMetadata(t *testing.T) {
	f := newFixture(t, Config{})
	f.structured.usage = llm.Usage{InputTokens: 7, OutputTokens: 3}

	events := collect(f.router, "How many Python jobs are there and what skills do they need?", nil)
	if len(events) == 0 {
		t.Fatalf("expected events")
	}

	firstContent := -1
	lastThought := -1
	metadataCount := 0
	for i, ev := range events {
		switch ev.Kind {
		case KindThought:
			lastThought = i
		case KindContent:
			if firstContent < 0 {
				firstContent = i
			}
		case KindMetadata:
			metadataCount++
		}
	}
	if lastThought < 0 || firstContent < 0 || lastThought > firstContent {
		t.Fatalf("thought events must precede content: %+v", events)
	}
	if metadataCount != 1 || events[len(events)-1].Kind != KindMetadata {
		t.Fatalf("expected exactly one trailing metadata event: %+v", events)
	}

	meta := events[len(events)-1].Metadata
	wantIn := classifyUsage.InputTokens + composeUsage.InputTokens + 7
	wantOut := classifyUsage.OutputTokens + composeUsage.OutputTokens + 3
	if meta.InputTokens != wantIn || meta.OutputTokens != wantOut {
		t.Fatalf("expected tokens %d/%d, got %d/%d", wantIn, wantOut, meta.InputTokens, meta.OutputTokens)
	}
	if meta.LatencySeconds < 0 {
		t.Fatalf("latency must not be negative")
	}

	for _, ev := range events {
		if ev.Kind == KindThought && strings.Contains(contentOf(events), ev.Text) {
			t.Fatalf("thought text leaked into content: %q", ev.Text)
		}
	}
}

func TestThoughtPreviewIsTruncated(t *testing.T) {
	f := newFixture(t, Config{ThoughtPreview: 10})
	f.structured.answer = strings.Repeat("x", 100)

	for _, ev := range collect(f.router, "How many jobs require Python?", nil) {
		if ev.Kind == KindThought && strings.Contains(ev.Text, "returned") {
			if !strings.HasSuffix(ev.Text, "xxxxxxxxxx...") || strings.Count(ev.Text, "x") != 10 {
				t.Fatalf("unexpected preview %q", ev.Text)
			}
			return
		}
	}
	t.Fatalf("no completion thought found")
}

func TestLanguageMirroring(t *testing.T) {
	f := newFixture(t, Config{})
	f.structured.answer = "There are 2 open Python positions in Jakarta."

	answer := f.router.Route(context.Background(), "Berapa lowongan Python yang ada di Jakarta?", nil)
	if !strings.Contains(answer, "lowongan") {
		t.Fatalf("expected an Indonesian answer, got %q", answer)
	}

	calls := f.gen.Calls()
	compose := calls[len(calls)-1]
	if !strings.Contains(compose.System, "Indonesian") {
		t.Fatalf("composition must ask for Indonesian: %q", compose.System)
	}
	if !strings.Contains(llmtest.PromptText(compose), "There are 2 open Python positions") {
		t.Fatalf("tool output must be passed for translation")
	}
}

func TestGatewayFailureBecomesApology(t *testing.T) {
	f := newFixture(t, Config{})
	f.structured.err = errors.New("no such table: jobs")

	answer := f.router.Route(context.Background(), "How many jobs require Python?", nil)
	if !IsApology(answer) {
		t.Fatalf("expected apology, got %q", answer)
	}
	if !strings.Contains(answer, "no such table: jobs") {
		t.Fatalf("apology must embed the error detail: %q", answer)
	}

	events := collect(f.router, "How many jobs require Python?", nil)
	if events[len(events)-1].Kind != KindMetadata {
		t.Fatalf("failed stream must still terminate with metadata")
	}
	if contentOf(events) != answer {
		t.Fatalf("stream and route disagree on failure")
	}
}

func TestApologyFollowsQueryLanguage(t *testing.T) {
	f := newFixture(t, Config{})
	f.documents.err = errors.New("connection refused")

	answer := f.router.Route(context.Background(), "Apa keterampilan yang dibutuhkan data scientist?", nil)
	if !strings.HasPrefix(answer, lang.Indonesian.Apology()) {
		t.Fatalf("expected Indonesian apology, got %q", answer)
	}
}

func TestClassificationFailureUsesDefaultIntent(t *testing.T) {
	gen := &llmtest.Generator{Respond: func(req *llm.Request) llmtest.Reply {
		if isClassification(req) {
			return llmtest.Reply{Err: errors.New("classifier down")}
		}
		return composer(req)
	}}
	structured := &fakeStructured{answer: "x"}
	documents := &fakeDocuments{}

	r, err := New(gen, structured, documents, wordDetector{}, Config{}, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	answer := r.Route(context.Background(), "How many jobs require Python?", nil)
	if IsApology(answer) {
		t.Fatalf("classification failure must not surface: %q", answer)
	}
	if documents.count() != 1 || structured.count() != 0 {
		t.Fatalf("expected default descriptive dispatch, got structured=%d documents=%d", structured.count(), documents.count())
	}

	r.cfg.DefaultIntent = IntentCasual
	r.Route(context.Background(), "How many jobs require Python?", nil)
	if documents.count() != 1 {
		t.Fatalf("configured default intent must be honoured")
	}
}

func TestEmptyDocumentSearchStillAnswers(t *testing.T) {
	f := newFixture(t, Config{})
	f.documents.records = nil

	f.router.Route(context.Background(), "What skills are needed for a Data Scientist role?", nil)

	calls := f.gen.Calls()
	if !strings.Contains(llmtest.PromptText(calls[len(calls)-1]), noDocumentsFound) {
		t.Fatalf("empty search must be reported to the composer")
	}
}

func TestCompositionFailures(t *testing.T) {
	t.Run("before any content", func(t *testing.T) {
		gen := &llmtest.Generator{Respond: func(req *llm.Request) llmtest.Reply {
			if isClassification(req) {
				return llmtest.Reply{Text: "CHAT"}
			}
			return llmtest.Reply{Err: errors.New("model overloaded")}
		}}
		r, _ := New(gen, nil, nil, wordDetector{}, Config{}, nil)

		answer := r.Route(context.Background(), "Hello there", nil)
		if !IsApology(answer) || !strings.Contains(answer, "model overloaded") {
			t.Fatalf("expected apology with detail, got %q", answer)
		}
	})

	t.Run("mid stream", func(t *testing.T) {
		gen := &llmtest.Generator{Respond: func(req *llm.Request) llmtest.Reply {
			if isClassification(req) {
				return llmtest.Reply{Text: "CHAT"}
			}
			return llmtest.Reply{Text: "Partial answer", StreamErr: errors.New("connection reset")}
		}}
		r, _ := New(gen, nil, nil, wordDetector{}, Config{}, nil)

		events := collect(r, "Hello there", nil)
		text := contentOf(events)
		if !strings.HasPrefix(text, "Partial answer\n\n") || !strings.Contains(text, "connection reset") {
			t.Fatalf("unexpected content %q", text)
		}
		if !IsApology(text) {
			t.Fatalf("expected %q to be recognised as an apology", text)
		}
		if text != r.Route(context.Background(), "Hello there", nil) {
			t.Fatalf("route must mirror the stream")
		}
	})

	t.Run("empty answer", func(t *testing.T) {
		gen := &llmtest.Generator{Respond: func(req *llm.Request) llmtest.Reply {
			if isClassification(req) {
				return llmtest.Reply{Text: "CHAT"}
			}
			return llmtest.Reply{}
		}}
		r, _ := New(gen, nil, nil, wordDetector{}, Config{}, nil)

		if answer := r.Route(context.Background(), "Hello there", nil); !IsApology(answer) {
			t.Fatalf("expected apology for empty answer, got %q", answer)
		}
	})
}

func TestMissingStoreIsReportedAsApology(t *testing.T) {
	r, err := New(scriptedGenerator(), nil, nil, wordDetector{}, Config{}, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	answer := r.Route(context.Background(), "How many jobs require Python?", nil)
	if !IsApology(answer) || !strings.Contains(answer, "not configured") {
		t.Fatalf("expected apology, got %q", answer)
	}
}

func TestEmptyQuery(t *testing.T) {
	f := newFixture(t, Config{})

	events := collect(f.router, "   ", nil)
	if len(events) != 2 || events[0].Kind != KindContent || events[1].Kind != KindMetadata {
		t.Fatalf("expected apology and metadata, got %+v", events)
	}
	if !strings.Contains(events[0].Text, ErrEmptyQuery.Error()) {
		t.Fatalf("unexpected apology %q", events[0].Text)
	}
	if len(f.gen.Calls()) != 0 {
		t.Fatalf("blank query must not reach the model")
	}
}

func TestConsumerStopCancelsWork(t *testing.T) {
	f := newFixture(t, Config{})

	var seen []Event
	for ev := range f.router.Stream(context.Background(), "How many jobs require Python?", nil) {
		seen = append(seen, ev)
		if ev.Kind == KindThought && strings.Contains(ev.Text, "returned") {
			break
		}
	}

	for _, ev := range seen {
		if ev.Kind == KindMetadata || ev.Kind == KindContent {
			t.Fatalf("no content or metadata expected after an early stop: %+v", seen)
		}
	}
	if len(f.gen.Calls()) != 1 {
		t.Fatalf("composition must not run after the consumer left, got %d calls", len(f.gen.Calls()))
	}
	if err := f.structured.ctxs[0].Err(); !errors.Is(err, context.Canceled) {
		t.Fatalf("tool context must be cancelled once the consumer stops, got %v", err)
	}
}

func TestHistoryReachesPromptsWithoutMutation(t *testing.T) {
	f := newFixture(t, Config{HistoryWindow: 1})
	h := history.History{history.User("I live in Bandung"), history.Assistant("Got it")}
	snapshot := append(history.History(nil), h...)

	f.router.Route(context.Background(), "Hello again", h)

	calls := f.gen.Calls()
	compose := llmtest.PromptText(calls[len(calls)-1])
	if !strings.Contains(compose, "assistant: Got it") || strings.Contains(compose, "I live in Bandung") {
		t.Fatalf("expected only the last turn in the composition prompt:\n%s", compose)
	}
	if !strings.Contains(llmtest.PromptText(calls[0]), "I live in Bandung") {
		t.Fatalf("classification should see recent turns")
	}
	for i := range h {
		if h[i] != snapshot[i] {
			t.Fatalf("history was mutated")
		}
	}
}

func TestConcurrentSessions(t *testing.T) {
	f := newFixture(t, Config{})

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := "How many jobs require Python?"
			if i%2 == 0 {
				q = "Berapa lowongan Python yang ada?"
			}
			answer := f.router.Answer(context.Background(), q, nil)
			if answer.Metadata.InputTokens != classifyUsage.InputTokens+composeUsage.InputTokens {
				errs <- "token counts leaked between sessions"
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, nil, wordDetector{}, Config{}, nil); err == nil {
		t.Fatalf("expected error without generator")
	}
	if _, err := New(scriptedGenerator(), nil, nil, nil, Config{}, nil); err == nil {
		t.Fatalf("expected error without detector")
	}
}
