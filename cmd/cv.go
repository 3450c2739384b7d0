package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/report"
)

var adviseCmd = &cobra.Command{
	Use:   "advise <cv-file>",
	Short: "Review a CV against the job catalog",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		advise(args[0])
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <cv-file>",
	Short: "Score a CV against one or more job descriptions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		match(cmd, args[0])
	},
}

var letterCmd = &cobra.Command{
	Use:   "letter <cv-file>",
	Short: "Write a cover letter for a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		letter(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(adviseCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(letterCmd)

	matchCmd.Flags().StringArray("job", nil, "job description file, can be repeated")
	matchCmd.Flags().StringP("export", "e", "", "write the ranked matches to an xlsx file")
	matchCmd.MarkFlagRequired("job")

	letterCmd.Flags().String("job", "", "job description file")
	letterCmd.MarkFlagRequired("job")
}

func advise(cvFile string) {
	ctx := context.Background()
	logger, config := setup()

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.Close()
	if c.advisor == nil {
		logger.Fatal("advisor is not available", zap.String("reason", "model provider is not configured"))
	}

	cv, err := readDocument(ctx, c.extractor, cvFile)
	if err != nil {
		logger.Fatal("reading cv", zap.Error(err))
	}

	consultation, err := c.advisor.Consult(ctx, cv)
	if err != nil {
		logger.Fatal("consulting", zap.Error(err))
	}

	logger.Info("consultation ready",
		zap.String("search_query", consultation.SearchQuery),
		zap.Int("matched_jobs", len(consultation.Jobs)),
	)
	printMarkdown(os.Stdout, consultation.Report)
}

func match(cmd *cobra.Command, cvFile string) {
	ctx := context.Background()
	logger, config := setup()

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.Close()
	if c.advisor == nil {
		logger.Fatal("matching is not available", zap.String("reason", "model provider is not configured"))
	}

	cv, err := readDocument(ctx, c.extractor, cvFile)
	if err != nil {
		logger.Fatal("reading cv", zap.Error(err))
	}

	jobFiles, _ := cmd.Flags().GetStringArray("job")
	matches := make([]report.NamedMatch, 0, len(jobFiles))
	for _, file := range jobFiles {
		job, err := readDocument(ctx, c.extractor, file)
		if err != nil {
			logger.Error("skipping job", zap.String("file", file), zap.Error(err))
			continue
		}

		analysis := c.advisor.Match(ctx, cv, job)
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		matches = append(matches, report.NamedMatch{Job: name, Analysis: analysis})

		printMarkdown(os.Stdout, fmt.Sprintf("## %s: %.0f/100\n\n%s\n\n**Strengths**\n%s\n**Gaps**\n%s\n**Recommendations**\n%s",
			name, analysis.Score, analysis.Summary,
			markdownList(analysis.Strengths), markdownList(analysis.Gaps), markdownList(analysis.Recommendations)))
	}

	export, _ := cmd.Flags().GetString("export")
	if export == "" || len(matches) == 0 {
		return
	}
	path, err := report.WriteMatches(export, matches)
	if err != nil {
		logger.Fatal("exporting matches", zap.Error(err))
	}
	logger.Info("matches exported", zap.String("filename", path), zap.Int("count", len(matches)))
}

func letter(cmd *cobra.Command, cvFile string) {
	ctx := context.Background()
	logger, config := setup()

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.Close()
	if c.letters == nil {
		logger.Fatal("cover letters are not available", zap.String("reason", "model provider is not configured"))
	}

	cv, err := readDocument(ctx, c.extractor, cvFile)
	if err != nil {
		logger.Fatal("reading cv", zap.Error(err))
	}
	jobFile, _ := cmd.Flags().GetString("job")
	job, err := readDocument(ctx, c.extractor, jobFile)
	if err != nil {
		logger.Fatal("reading job description", zap.Error(err))
	}

	text, err := c.letters.Write(ctx, cv, job)
	if err != nil {
		logger.Fatal("writing cover letter", zap.Error(err))
	}
	printMarkdown(os.Stdout, text)
}

func markdownList(items []string) string {
	if len(items) == 0 {
		return "- none\n"
	}
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}
