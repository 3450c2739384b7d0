package filtering

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/jobs"
)

type excludeFileFilter struct {
	path   string
	logger *zap.Logger
}

// NewExcludeFile creates a filter that removes jobs listed in a file, one ID
// per line. Empty lines and lines starting with # are ignored. A missing
// file excludes nothing.
func NewExcludeFile(path string, log *zap.Logger) Filter {
	if log == nil {
		log = zap.NewNop()
	}
	return &excludeFileFilter{path: strings.TrimSpace(path), logger: log}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) IsEnabled() bool { return f.path != "" }

func (f *excludeFileFilter) Apply(_ context.Context, in []jobs.Job) ([]jobs.Job, Step, error) {
	ids, err := ReadExcludeFile(f.path)
	if err != nil {
		return in, Step{}, err
	}

	out, dropped := keep(in, func(j *jobs.Job) bool {
		_, excluded := ids[j.ID]
		return !excluded
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding jobs based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(out)),
		)
	}
	return out, stepOf(len(in), out), nil
}

func (f *excludeFileFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: map[string]string{"path": f.path}}
}

// ReadExcludeFile returns the set of job IDs listed in path.
func ReadExcludeFile(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening exclude file: %w", err)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids[line] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading exclude file: %w", err)
	}
	return ids, nil
}
