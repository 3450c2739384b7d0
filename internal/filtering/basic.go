package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/jobs"
)

type incompleteFilter struct {
	logger *zap.Logger
}

// NewIncomplete creates a filter that removes jobs failing validation.
func NewIncomplete(log *zap.Logger) Filter {
	if log == nil {
		log = zap.NewNop()
	}
	return &incompleteFilter{logger: log}
}

func (f *incompleteFilter) Name() string { return "incomplete" }

func (f *incompleteFilter) IsEnabled() bool { return true }

func (f *incompleteFilter) Apply(_ context.Context, in []jobs.Job) ([]jobs.Job, Step, error) {
	out, dropped := keep(in, func(j *jobs.Job) bool {
		if err := j.Validate(); err != nil {
			f.logger.Debug("dropping invalid job", zap.String("job_id", j.ID), zap.Error(err))
			return false
		}
		return true
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding incomplete jobs", zap.Strings("excluded_jobs", dropped))
	}
	return out, stepOf(len(in), out), nil
}

type duplicatesFilter struct{}

// NewDuplicates creates a filter that keeps the last occurrence of every job ID.
func NewDuplicates() Filter {
	return duplicatesFilter{}
}

func (duplicatesFilter) Name() string { return "duplicates" }

func (duplicatesFilter) IsEnabled() bool { return true }

func (duplicatesFilter) Apply(_ context.Context, in []jobs.Job) ([]jobs.Job, Step, error) {
	last := make(map[string]int, len(in))
	for i := range in {
		last[in[i].ID] = i
	}
	out := make([]jobs.Job, 0, len(last))
	for i := range in {
		if last[in[i].ID] == i {
			out = append(out, in[i])
		}
	}
	return out, stepOf(len(in), out), nil
}

type employersFilter struct {
	employers map[string]struct{}
	logger    *zap.Logger
}

// NewExcludedEmployers creates a filter that removes jobs of the given
// companies. Names compare case-insensitively.
func NewExcludedEmployers(employers []string, log *zap.Logger) Filter {
	if log == nil {
		log = zap.NewNop()
	}
	f := &employersFilter{employers: make(map[string]struct{}, len(employers)), logger: log}
	for _, e := range employers {
		if e = normalize(e); e != "" {
			f.employers[e] = struct{}{}
		}
	}
	return f
}

func (f *employersFilter) Name() string { return "employers" }

func (f *employersFilter) IsEnabled() bool { return len(f.employers) > 0 }

func (f *employersFilter) Apply(_ context.Context, in []jobs.Job) ([]jobs.Job, Step, error) {
	out, dropped := keep(in, func(j *jobs.Job) bool {
		_, excluded := f.employers[normalize(j.Company)]
		return !excluded
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding jobs by employers",
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(out)),
		)
	}
	return out, stepOf(len(in), out), nil
}

func (f *employersFilter) Status() Status {
	names := make([]string, 0, len(f.employers))
	for e := range f.employers {
		names = append(names, e)
	}
	details := map[string]string{}
	if len(names) > 0 {
		details["employers"] = strings.Join(names, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: details}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
