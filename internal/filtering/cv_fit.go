package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents/advisor"
	"github.com/spigell/career-assistant/internal/jobs"
)

// Matcher scores a CV against a job description.
type Matcher interface {
	Match(ctx context.Context, cvText, jobDescription string) *advisor.MatchAnalysis
}

type cvFitFilter struct {
	matcher  Matcher
	cv       string
	minScore float64
	logger   *zap.Logger
}

// NewCVFit creates a filter that keeps only jobs whose match score against cv
// reaches minScore. It is disabled without a matcher or a CV.
func NewCVFit(matcher Matcher, cv string, minScore float64, log *zap.Logger) Filter {
	if log == nil {
		log = zap.NewNop()
	}
	if minScore < 0 {
		minScore = 0
	}
	return &cvFitFilter{matcher: matcher, cv: strings.TrimSpace(cv), minScore: minScore, logger: log}
}

func (f *cvFitFilter) Name() string { return "cv_fit" }

func (f *cvFitFilter) IsEnabled() bool { return f.matcher != nil && f.cv != "" }

func (f *cvFitFilter) Apply(ctx context.Context, in []jobs.Job) ([]jobs.Job, Step, error) {
	out := make([]jobs.Job, 0, len(in))
	for i := range in {
		if err := ctx.Err(); err != nil {
			return nil, Step{}, err
		}

		analysis := f.matcher.Match(ctx, f.cv, in[i].Text())
		if analysis.Score < f.minScore {
			f.logger.Info("job rejected by cv fit",
				zap.String("job_id", in[i].ID),
				zap.Float64("score", analysis.Score),
				zap.String("summary", analysis.Summary),
			)
			continue
		}
		f.logger.Debug("job approved by cv fit", zap.String("job_id", in[i].ID), zap.Float64("score", analysis.Score))
		out = append(out, in[i])
	}
	return out, stepOf(len(in), out), nil
}

func (f *cvFitFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Details: map[string]string{"minimum_fit_score": fmt.Sprintf("%.2f", f.minScore)},
	}
}
