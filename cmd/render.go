package cmd

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/spigell/career-assistant/internal/ingestion"
	"github.com/spigell/career-assistant/internal/router"
)

var (
	thoughtStyle  = lipgloss.NewStyle().Faint(true).Italic(true)
	metadataStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	speakerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// printMarkdown renders md for the terminal, falling back to plain text.
func printMarkdown(w io.Writer, md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		if out, rerr := r.Render(md); rerr == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprintln(w, md)
}

// printEvents writes a router stream as it arrives and returns the answer.
func printEvents(w io.Writer, events iter.Seq[router.Event]) string {
	var answer []byte
	for e := range events {
		switch e.Kind {
		case router.KindThought:
			fmt.Fprintln(w, thoughtStyle.Render(fmt.Sprintf("[%s] %s", e.Tool, e.Text)))
		case router.KindContent:
			fmt.Fprint(w, e.Text)
			answer = append(answer, e.Text...)
		case router.KindMetadata:
			fmt.Fprintln(w)
			if e.Metadata != nil {
				fmt.Fprintln(w, metadataStyle.Render(fmt.Sprintf("%.2fs, %d input tokens, %d output tokens",
					e.Metadata.LatencySeconds, e.Metadata.InputTokens, e.Metadata.OutputTokens)))
			}
		}
	}
	return string(answer)
}

// readDocument extracts text from a local CV or job description file.
func readDocument(ctx context.Context, extractor *ingestion.Extractor, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	text, err := extractor.Extract(ctx, ingestion.Document{Name: path, Data: data})
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	return text, nil
}
