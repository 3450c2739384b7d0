package filtering

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/career-assistant/internal/agents/advisor"
	"github.com/spigell/career-assistant/internal/jobs"
)

func ids(in []jobs.Job) string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = in[i].ID
	}
	return strings.Join(out, ",")
}

func sample() []jobs.Job {
	return []jobs.Job{
		{ID: "1", Title: "Go developer", Company: "Acme"},
		{ID: "2", Title: "SRE", Company: "Globex"},
		{ID: "3", Title: "", Company: "Initech"},
		{ID: "2", Title: "Senior SRE", Company: "Globex"},
		{ID: "4", Title: "Data engineer", Company: "acme "},
	}
}

func TestIncompleteAndDuplicates(t *testing.T) {
	t.Parallel()

	out, err := New([]Filter{NewIncomplete(nil), NewDuplicates()}, nil).Run(context.Background(), sample())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := ids(out); got != "1,2,4" {
		t.Fatalf("ids = %q, want 1,2,4", got)
	}
	if out[1].Title != "Senior SRE" {
		t.Fatalf("duplicate kept %q, want the last occurrence", out[1].Title)
	}
}

func TestExcludedEmployers(t *testing.T) {
	t.Parallel()

	f := NewExcludedEmployers([]string{"ACME", " "}, nil)
	out, step, err := f.Apply(context.Background(), sample())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := ids(out); got != "2,3,2" {
		t.Fatalf("ids = %q", got)
	}
	if step != (Step{Initial: 5, Dropped: 2, Left: 3}) {
		t.Fatalf("step = %+v", step)
	}

	if NewExcludedEmployers(nil, nil).IsEnabled() {
		t.Fatal("filter without employers must be disabled")
	}
}

func TestExcludeFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "exclude.txt")
	if err := os.WriteFile(path, []byte("# seen already\n1\n\n 4 \n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := NewExcludeFile(path, nil).Apply(context.Background(), sample())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := ids(out); got != "2,3,2" {
		t.Fatalf("ids = %q", got)
	}

	missing := NewExcludeFile(filepath.Join(t.TempDir(), "none.txt"), nil)
	out, _, err = missing.Apply(context.Background(), sample())
	if err != nil || len(out) != 5 {
		t.Fatalf("missing file: len = %d, err = %v", len(out), err)
	}
}

type scoreByTitle map[string]float64

func (s scoreByTitle) Match(_ context.Context, _ string, job string) *advisor.MatchAnalysis {
	for title, score := range s {
		if strings.Contains(job, "Title: "+title+"\n") {
			return &advisor.MatchAnalysis{Score: score}
		}
	}
	return advisor.FallbackAnalysis()
}

func TestCVFit(t *testing.T) {
	t.Parallel()

	matcher := scoreByTitle{"Go developer": 85, "SRE": 40, "Data engineer": 70}
	f := NewCVFit(matcher, "Go, Kubernetes", 70, nil)
	if !f.IsEnabled() {
		t.Fatal("filter must be enabled with a matcher and a cv")
	}

	in := []jobs.Job{sample()[0], sample()[1], sample()[4]}
	out, step, err := f.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := ids(out); got != "1,4" {
		t.Fatalf("ids = %q, want 1,4", got)
	}
	if step.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", step.Dropped)
	}

	if NewCVFit(matcher, "  ", 70, nil).IsEnabled() {
		t.Fatal("filter without a cv must be disabled")
	}
}

func TestRunLogsStepsAndSkipsDisabled(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	f := New([]Filter{
		NewExcludedEmployers(nil, nil),
		NewDuplicates(),
	}, zap.New(core))

	out, err := f.Run(context.Background(), sample())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}

	steps := logs.FilterMessage("filter step").All()
	if len(steps) != 1 {
		t.Fatalf("logged %d steps, want 1", len(steps))
	}
	fields := steps[0].ContextMap()
	if fields["name"] != "duplicates" || fields["dropped"] != int64(1) {
		t.Fatalf("fields = %v", fields)
	}
	if logs.FilterMessage("filter disabled").Len() != 1 {
		t.Fatal("disabled filter was not reported")
	}

	statuses := f.Describe()
	if len(statuses) != 2 || statuses[0].Enabled {
		t.Fatalf("statuses = %+v", statuses)
	}
}
