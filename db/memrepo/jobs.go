package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
)

type JobStore struct {
	mu     sync.Mutex
	jobs   map[schedule.Key]schedule.Job
	nextID uint64
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[schedule.Key]schedule.Job)}
}

func (s *JobStore) UpsertJob(_ context.Context, job *schedule.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.Key]; ok {
		job.ID = existing.ID
		job.Created = existing.Created
	} else {
		s.nextID++
		job.ID = s.nextID
	}
	s.jobs[job.Key] = *job
	return nil
}

func (s *JobStore) GetJob(_ context.Context, key schedule.Key) (schedule.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[key]
	if !ok {
		return schedule.Job{}, errors.WithStack(core.ErrNotFound)
	}
	return job, nil
}

func (s *JobStore) GetPendingJobs(_ context.Context) ([]schedule.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]schedule.Job, 0)
	for _, j := range s.jobs {
		if j.Status == schedule.Pending {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs, nil
}

func (s *JobStore) UpdateJob(_ context.Context, job schedule.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.Key]
	if !ok || stored.Token != job.Token {
		return errors.WithStack(core.ErrNotFound)
	}
	stored.Status = job.Status
	stored.Attempts = job.Attempts
	stored.FireAt = job.FireAt
	stored.LastError = job.LastError
	stored.Updated = job.Updated
	s.jobs[job.Key] = stored
	return nil
}

func (s *JobStore) CancelJobs(_ context.Context, transactionID uint64, kinds []schedule.Kind, updated time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, j := range s.jobs {
		if key.TransactionID != transactionID || j.Status != schedule.Pending || !hasKind(kinds, key.Kind) {
			continue
		}
		j.Status = schedule.Cancelled
		j.Updated = updated
		s.jobs[key] = j
		n++
	}
	return n, nil
}

func hasKind(kinds []schedule.Kind, k schedule.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
