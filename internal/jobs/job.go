// Package jobs maintains the job catalog behind both stores: it reads job
// postings from JSONL files or hh.ru and writes them to the jobs database and
// the vector index.
package jobs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes bounds one JSONL record.
const maxLineBytes = 4 << 20

// Job is one posting.
type Job struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Company     string   `json:"company,omitempty"`
	Location    string   `json:"location,omitempty"`
	SalaryFrom  int      `json:"salary_from,omitempty"`
	SalaryTo    int      `json:"salary_to,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Experience  string   `json:"experience,omitempty"`
	Schedule    string   `json:"schedule,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Validate checks the fields the catalog relies on.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(j.Title) == "" {
		return fmt.Errorf("job %s: title is required", j.ID)
	}
	return nil
}

// Salary renders the salary range, or "" when unknown.
func (j *Job) Salary() string {
	switch {
	case j.SalaryFrom > 0 && j.SalaryTo > 0:
		return strings.TrimSpace(fmt.Sprintf("%d-%d %s", j.SalaryFrom, j.SalaryTo, j.Currency))
	case j.SalaryFrom > 0:
		return strings.TrimSpace(fmt.Sprintf("from %d %s", j.SalaryFrom, j.Currency))
	case j.SalaryTo > 0:
		return strings.TrimSpace(fmt.Sprintf("up to %d %s", j.SalaryTo, j.Currency))
	default:
		return ""
	}
}

// Text is the description indexed for semantic search.
func (j *Job) Text() string {
	lines := []string{"Title: " + j.Title}
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Company", j.Company)
	add("Location", j.Location)
	add("Salary", j.Salary())
	add("Experience", j.Experience)
	add("Schedule", j.Schedule)
	add("Skills", strings.Join(j.Skills, ", "))
	add("Description", j.Description)
	return strings.Join(lines, "\n")
}

// Document is the payload stored in the vector index.
func (j *Job) Document() map[string]any {
	return map[string]any{
		"text":    j.Text(),
		"job_id":  j.ID,
		"title":   j.Title,
		"company": j.Company,
		"url":     j.URL,
	}
}

// ReadJSONL reads one job per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]Job, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		jobs []Job
		line int
	)
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	return jobs, nil
}
