// Package report exports match analyses to Excel.
package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/career-assistant/internal/agents/advisor"
)

const (
	MatchesSheet = "Matches"

	headerColor = "4472C4"
)

// NamedMatch is one analysed job.
type NamedMatch struct {
	Job      string
	Analysis *advisor.MatchAnalysis
}

var (
	headers = []string{"Rank", "Job", "Score", "Summary", "Strengths", "Gaps", "Recommendations"}
	widths  = []float64{8, 30, 10, 50, 40, 40, 40}

	// Score bands, highest first.
	bands = []struct {
		min   float64
		color string
	}{
		{min: 90, color: "C6EFCE"},
		{min: 70, color: "FFEB9C"},
		{min: 50, color: "FFC7CE"},
		{min: 0, color: "FF9999"},
	}

	border = []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
)

// WriteMatches writes the matches ranked by score and returns the path of
// the written file. The .xlsx extension is added when missing.
func WriteMatches(path string, matches []NamedMatch) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	ranked := make([]NamedMatch, 0, len(matches))
	for _, m := range matches {
		if m.Analysis != nil {
			ranked = append(ranked, m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Analysis.Score > ranked[j].Analysis.Score
	})

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", MatchesSheet); err != nil {
		return "", err
	}
	if err := writeMatchesSheet(f, ranked); err != nil {
		return "", fmt.Errorf("create matches sheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save excel file: %w", err)
	}
	return path, nil
}

func writeMatchesSheet(f *excelize.File, ranked []NamedMatch) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return err
	}

	bandStyles := make([]int, len(bands))
	for i, band := range bands {
		bandStyles[i], err = f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{band.color}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
			Border:    border,
		})
		if err != nil {
			return err
		}
	}

	for col, header := range headers {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(MatchesSheet, name, name, widths[col]); err != nil {
			return err
		}
		cell := name + "1"
		if err := f.SetCellValue(MatchesSheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(MatchesSheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for i, m := range ranked {
		row := i + 2
		values := []any{
			i + 1,
			m.Job,
			m.Analysis.Score,
			m.Analysis.Summary,
			bullets(m.Analysis.Strengths),
			bullets(m.Analysis.Gaps),
			bullets(m.Analysis.Recommendations),
		}
		start := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(MatchesSheet, start, &values); err != nil {
			return err
		}
		end := fmt.Sprintf("G%d", row)
		if err := f.SetCellStyle(MatchesSheet, start, end, bandStyles[bandOf(m.Analysis.Score)]); err != nil {
			return err
		}
	}

	if len(ranked) > 0 {
		if err := f.AutoFilter(MatchesSheet, fmt.Sprintf("A1:G%d", len(ranked)+1), nil); err != nil {
			return err
		}
	}

	return f.SetPanes(MatchesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func bandOf(score float64) int {
	for i, band := range bands {
		if score >= band.min {
			return i
		}
	}
	return len(bands) - 1
}

func bullets(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return strings.Join(lines, "\n")
}
