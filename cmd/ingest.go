package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/filtering"
	"github.com/spigell/career-assistant/internal/jobs"
	"github.com/spigell/career-assistant/internal/secrets"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load jobs into the jobs database and the description index",
	Run: func(cmd *cobra.Command, _ []string) {
		ingest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("jsonl", "", "file with one job JSON object per line")
	ingestCmd.Flags().String("hh-text", "", "search hh.ru vacancies with this text")
	ingestCmd.Flags().IntSlice("hh-area", nil, "hh.ru area ids")
	ingestCmd.Flags().StringSlice("hh-schedule", nil, "hh.ru schedules, e.g. remote")
	ingestCmd.Flags().Int("hh-pages", 0, "maximum result pages to read from hh.ru")
	ingestCmd.Flags().Bool("hh-details", false, "fetch every vacancy for its full description")
	ingestCmd.Flags().String("cv", "", "keep only jobs that fit this CV file")
	ingestCmd.Flags().Float64("min-score", 0, "minimum fit score for --cv (overrides ingest.minimum-fit-score)")
	ingestCmd.Flags().StringP("exclude-file", "e", "", "file with job ids to skip, one per line")

	viper.BindPFlag("ingest.exclude-file", ingestCmd.Flags().Lookup("exclude-file"))
	viper.BindPFlag("ingest.minimum-fit-score", ingestCmd.Flags().Lookup("min-score"))
}

func ingest(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	file, _ := cmd.Flags().GetString("jsonl")
	text, _ := cmd.Flags().GetString("hh-text")
	if file == "" && text == "" {
		logger.Fatal("nothing to ingest", zap.String("hint", "pass --jsonl and/or --hh-text"))
	}

	var found []jobs.Job
	if file != "" {
		fromFile, err := readJobsFile(file)
		if err != nil {
			logger.Fatal("reading jobs file", zap.String("file", file), zap.Error(err))
		}
		logger.Info("jobs read from file", zap.String("file", file), zap.Int("count", len(fromFile)))
		found = append(found, fromFile...)
	}

	if text != "" {
		fromHH, err := searchHeadHunter(ctx, cmd, config.HeadHunter, text, logger)
		if err != nil {
			logger.Fatal("searching hh.ru", zap.Error(err))
		}
		logger.Info("jobs found on hh.ru", zap.String("search", text), zap.Int("count", len(fromHH)))
		found = append(found, fromHH...)
	}

	if len(found) == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs found"))
		return
	}

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.Close()

	found, err = prepareFilters(ctx, cmd, c, config.Ingest, logger).Run(ctx, found)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}
	if len(found) == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs left after filters"))
		return
	}

	if err := ensureDir(config.Stores.JobsDB); err != nil {
		logger.Fatal("preparing jobs db", zap.Error(err))
	}

	var docs jobs.DocumentWriter
	if c.docs != nil {
		docs = c.docs
	} else {
		logger.Warn("description index is unavailable, jobs are stored without indexing")
	}

	catalog, err := jobs.OpenCatalog(config.Stores.JobsDB, docs, logger)
	if err != nil {
		logger.Fatal("opening jobs db", zap.Error(err))
	}
	defer catalog.Close()

	stats, err := catalog.Write(ctx, found)
	if err != nil {
		logger.Fatal("writing jobs", zap.Error(err))
	}

	total, err := catalog.Count(ctx)
	if err != nil {
		logger.Warn("counting jobs", zap.Error(err))
	}
	logger.Info("ingestion finished",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("indexed", stats.Indexed),
		zap.Int("total", total),
	)
}

func prepareFilters(ctx context.Context, cmd *cobra.Command, c *components, cfg *IngestConfig, logger *zap.Logger) *filtering.Filtering {
	steps := []filtering.Filter{
		filtering.NewIncomplete(logger),
		filtering.NewDuplicates(),
		filtering.NewExcludedEmployers(cfg.ExcludeEmployers, logger),
		filtering.NewExcludeFile(cfg.ExcludeFile, logger),
	}

	if cvFile, _ := cmd.Flags().GetString("cv"); cvFile != "" {
		if c.advisor == nil {
			logger.Warn("skipping cv fit filter", zap.String("reason", "model provider is not configured"))
		} else {
			cv, err := readDocument(ctx, c.extractor, cvFile)
			if err != nil {
				logger.Fatal("reading cv", zap.Error(err))
			}
			steps = append(steps, filtering.NewCVFit(c.advisor, cv, cfg.MinimumFitScore, logger))
		}
	}

	return filtering.New(steps, logger)
}

func readJobsFile(path string) ([]jobs.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jobs.ReadJSONL(f)
}

func searchHeadHunter(ctx context.Context, cmd *cobra.Command, cfg *HeadHunterConfig, text string, logger *zap.Logger) ([]jobs.Job, error) {
	if cfg == nil {
		return nil, errors.New("headhunter config is required")
	}

	token, err := secrets.Optional(secrets.Source{
		Name:  "headhunter token",
		Value: cfg.Token,
		File:  cfg.TokenFile,
		Env:   "HH_TOKEN",
	})
	if err != nil {
		return nil, err
	}

	hh := jobs.NewHeadHunter(token, logger)
	if cfg.APIURL != "" {
		hh.APIURL = cfg.APIURL
	}

	params := jobs.SearchParams{Text: text}
	params.Areas, _ = cmd.Flags().GetIntSlice("hh-area")
	params.Schedules, _ = cmd.Flags().GetStringSlice("hh-schedule")
	params.MaxPages, _ = cmd.Flags().GetInt("hh-pages")
	params.Details, _ = cmd.Flags().GetBool("hh-details")

	return hh.Search(ctx, params)
}
