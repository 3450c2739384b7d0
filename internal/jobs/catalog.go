package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	company TEXT,
	location TEXT,
	salary_from INTEGER,
	salary_to INTEGER,
	currency TEXT,
	experience TEXT,
	schedule TEXT,
	skills TEXT,
	description TEXT,
	url TEXT,
	published_at TEXT,
	source TEXT
)`

const upsert = `INSERT INTO jobs (id, title, company, location, salary_from, salary_to, currency,
	experience, schedule, skills, description, url, published_at, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	company = excluded.company,
	location = excluded.location,
	salary_from = excluded.salary_from,
	salary_to = excluded.salary_to,
	currency = excluded.currency,
	experience = excluded.experience,
	schedule = excluded.schedule,
	skills = excluded.skills,
	description = excluded.description,
	url = excluded.url,
	published_at = excluded.published_at,
	source = excluded.source`

// DocumentWriter indexes documents for semantic search.
type DocumentWriter interface {
	Add(ctx context.Context, payloads ...map[string]any) error
}

// WriteStats counts what Write did.
type WriteStats struct {
	Inserted int
	Updated  int
	Indexed  int
}

// Catalog writes jobs to the jobs database and the document index.
type Catalog struct {
	db     *sql.DB
	docs   DocumentWriter
	logger *zap.Logger
}

// OpenCatalog opens the jobs database at path for writing and creates the
// jobs table. docs may be nil to skip indexing.
func OpenCatalog(path string, docs DocumentWriter, log *zap.Logger) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open jobs db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}
	return &Catalog{db: db, docs: docs, logger: logger.WithFields(log, zap.String("component", "catalog"))}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Write upserts jobs. Jobs seen for the first time are also added to the
// document index; updated jobs keep their existing document.
func (c *Catalog) Write(ctx context.Context, jobs []Job) (WriteStats, error) {
	var stats WriteStats
	if len(jobs) == 0 {
		return stats, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	var fresh []map[string]any
	seen := make(map[string]struct{}, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if err := job.Validate(); err != nil {
			return WriteStats{}, err
		}

		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE id = ?`, job.ID).Scan(&exists)
		if err != nil {
			return WriteStats{}, fmt.Errorf("lookup job %s: %w", job.ID, err)
		}

		if _, err := tx.ExecContext(ctx, upsert,
			job.ID, job.Title, job.Company, job.Location, job.SalaryFrom, job.SalaryTo, job.Currency,
			job.Experience, job.Schedule, strings.Join(job.Skills, ","), job.Description, job.URL,
			job.PublishedAt, job.Source,
		); err != nil {
			return WriteStats{}, fmt.Errorf("write job %s: %w", job.ID, err)
		}

		_, dup := seen[job.ID]
		seen[job.ID] = struct{}{}
		if exists > 0 || dup {
			stats.Updated++
			continue
		}
		stats.Inserted++
		fresh = append(fresh, job.Document())
	}

	if c.docs != nil && len(fresh) > 0 {
		if err := c.docs.Add(ctx, fresh...); err != nil {
			return WriteStats{}, fmt.Errorf("index jobs: %w", err)
		}
		stats.Indexed = len(fresh)
	}

	if err := tx.Commit(); err != nil {
		return WriteStats{}, fmt.Errorf("commit jobs: %w", err)
	}

	c.logger.Info("jobs written",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("indexed", stats.Indexed),
	)
	return stats, nil
}

// Count returns the number of jobs in the catalog.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}
