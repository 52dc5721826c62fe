package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webintel/webintel/internal/scrape"
)

const jobColumns = `id, query, status, config, pages_crawled, pages_total, pages_failed, retries, error_text, created_at, updated_at, completed_at`

// JobStore persists run metadata in Postgres.
type JobStore struct {
	pool querier
}

// NewJobStore creates a JobStore backed by the given pool.
func NewJobStore(pool querier) *JobStore {
	return &JobStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new run row.
func (s *JobStore) CreateJob(ctx context.Context, job scrape.Job) error {
	cfgJSON, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}
	query := `
		INSERT INTO scrape_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.Query,
		job.Status,
		cfgJSON,
		job.Counters.PagesCrawled,
		job.Counters.PagesTotal,
		job.Counters.PagesFailed,
		job.Counters.Retries,
		job.ErrorText,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a run by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (scrape.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1;`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.Job{}, fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
		}
		return scrape.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns runs ordered newest first, plus the total count.
func (s *JobStore) ListJobs(ctx context.Context, limit, offset int) ([]scrape.Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scrape_jobs;`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + jobColumns + `
		FROM scrape_jobs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListJobsByStatus returns runs currently in the given status, oldest first.
func (s *JobStore) ListJobsByStatus(ctx context.Context, status scrape.JobStatus) ([]scrape.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scrape_jobs
		WHERE status = $1
		ORDER BY created_at ASC;
	`
	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// UpdateJobStatus updates the status, error text and counters for a run.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status scrape.JobStatus,
	errText string,
	counters scrape.JobCounters,
) error {
	now := time.Now().UTC()
	query := `
		UPDATE scrape_jobs
		SET status = $1,
			error_text = $2,
			pages_crawled = $3,
			pages_total = $4,
			pages_failed = $5,
			retries = $6,
			updated_at = $7,
			completed_at = CASE WHEN $8 AND completed_at IS NULL THEN $7 ELSE completed_at END
		WHERE id = $9;
	`
	tag, err := s.pool.Exec(ctx, query,
		status,
		errText,
		counters.PagesCrawled,
		counters.PagesTotal,
		counters.PagesFailed,
		counters.Retries,
		now,
		status.Terminal(),
		jobID,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	return nil
}

// DeleteJob removes a run row. Pages, links and vectors cascade.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrape_jobs WHERE id = $1;`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	return nil
}

func scanJob(row pgx.Row) (scrape.Job, error) {
	var (
		job     scrape.Job
		cfgJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&job.Query,
		&job.Status,
		&cfgJSON,
		&job.Counters.PagesCrawled,
		&job.Counters.PagesTotal,
		&job.Counters.PagesFailed,
		&job.Counters.Retries,
		&job.ErrorText,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return scrape.Job{}, err
	}
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &job.Config); err != nil {
			return scrape.Job{}, fmt.Errorf("unmarshal job config: %w", err)
		}
	}
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]scrape.Job, error) {
	var jobs []scrape.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}
