package job

import (
	"context"
	"errors"
	"sort"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Status    Status
	Operation Operation
}

// Matches reports whether j passes the filter.
func (f Filter) Matches(j *Job) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Operation != "" && j.Operation != f.Operation {
		return false
	}
	return true
}

// Repository persists jobs between the request that creates them and the
// requests that poll them.
type Repository interface {
	// Save inserts or replaces a job.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns the jobs matching filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Job, error)

	// Delete returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}

// newestFirst orders jobs by creation time, most recent first, with the ID
// as a tie breaker.
func newestFirst(jobs []*Job) {
	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].ID < jobs[b].ID
	})
}
