// Package filtering narrows a batch of jobs before it is stored.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/jobs"
	"github.com/spigell/career-assistant/internal/logger"
)

// Filter is a single filtering step.
type Filter interface {
	Name() string
	IsEnabled() bool
	Apply(ctx context.Context, in []jobs.Job) ([]jobs.Job, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

type Filtering struct {
	steps  []Filter
	logger *zap.Logger
}

func New(steps []Filter, log *zap.Logger) *Filtering {
	return &Filtering{
		steps:  steps,
		logger: logger.WithFields(log, zap.String("component", "filtering")),
	}
}

// Run applies the enabled steps in order.
func (f *Filtering) Run(ctx context.Context, in []jobs.Job) ([]jobs.Job, error) {
	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		in = next

		if len(in) == 0 {
			break
		}
	}
	return in, nil
}

// Describe returns status entries for the configured filters.
func (f *Filtering) Describe() []Status {
	statuses := make([]Status, 0, len(f.steps))
	for _, step := range f.steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: step.Name(), Enabled: step.IsEnabled()})
	}
	return statuses
}

// keep returns the jobs for which ok is true and the IDs of the others.
func keep(in []jobs.Job, ok func(*jobs.Job) bool) ([]jobs.Job, []string) {
	out := make([]jobs.Job, 0, len(in))
	var dropped []string
	for i := range in {
		if ok(&in[i]) {
			out = append(out, in[i])
			continue
		}
		dropped = append(dropped, in[i].ID)
	}
	return out, dropped
}

func stepOf(initial int, left []jobs.Job) Step {
	return Step{Initial: initial, Dropped: initial - len(left), Left: len(left)}
}
