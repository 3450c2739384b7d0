package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/career-assistant/internal/agents/advisor"
)

func TestWriteMatches(t *testing.T) {
	tmpDir := t.TempDir()

	matches := []NamedMatch{
		{Job: "Data Analyst", Analysis: &advisor.MatchAnalysis{Score: 55, Summary: "Partial", Gaps: []string{"SQL", "Tableau"}}},
		{Job: "Go Developer", Analysis: &advisor.MatchAnalysis{Score: 91, Summary: "Strong", Strengths: []string{"Go"}}},
		{Job: "Skipped"},
	}

	path, err := WriteMatches(filepath.Join(tmpDir, "matches"), matches)
	if err != nil {
		t.Fatalf("WriteMatches() failed: %v", err)
	}
	if filepath.Ext(path) != ".xlsx" {
		t.Fatalf("expected .xlsx extension, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s: %v", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(MatchesSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and two rows, got %d", len(rows))
	}
	if rows[0][1] != "Job" || rows[1][1] != "Go Developer" || rows[2][1] != "Data Analyst" {
		t.Fatalf("rows must be ranked by score: %v", rows)
	}
	if rows[2][5] != "- SQL\n- Tableau" {
		t.Fatalf("unexpected gaps cell %q", rows[2][5])
	}
}

func TestWriteMatchesKeepsExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.XLSX")
	got, err := WriteMatches(path, nil)
	if err != nil {
		t.Fatalf("WriteMatches() failed: %v", err)
	}
	if got != path {
		t.Fatalf("expected %s, got %s", path, got)
	}
}

func TestBandOf(t *testing.T) {
	cases := map[float64]int{100: 0, 90: 0, 75: 1, 50: 2, 10: 3, -1: 3}
	for score, want := range cases {
		if got := bandOf(score); got != want {
			t.Fatalf("bandOf(%v) = %d, want %d", score, got, want)
		}
	}
}
