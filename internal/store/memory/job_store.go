// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/webintel/webintel/internal/scrape"
)

// JobStore keeps run metadata in process memory.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scrape.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]scrape.Job)}
}

// CreateJob stores a new run.
func (s *JobStore) CreateJob(_ context.Context, job scrape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a run by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns runs ordered newest first, plus the total count.
func (s *JobStore) ListJobs(_ context.Context, limit, offset int) ([]scrape.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]scrape.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

// ListJobsByStatus returns runs currently in the given status.
func (s *JobStore) ListJobsByStatus(_ context.Context, status scrape.JobStatus) ([]scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.Job
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateJobStatus updates the status and counters for a run.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status scrape.JobStatus,
	errText string,
	counters scrape.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	now := time.Now().UTC()
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	job.UpdatedAt = now
	if status.Terminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	s.jobs[jobID] = job
	return nil
}

// DeleteJob removes a run.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	delete(s.jobs, jobID)
	return nil
}
