package core

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("job already exists")
)

// JobStore holds every job for the life of the process. Jobs are never
// deleted; terminal jobs stay queryable.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*ScanJob
	order []string // insertion order, oldest first
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*ScanJob),
	}
}

func (s *JobStore) Create(job *ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}

	stored := *job
	s.jobs[job.ID] = &stored
	s.order = append(s.order, job.ID)
	return nil
}

// Update applies mutate to the stored job under the store lock, serializing
// concurrent updates to the same id.
func (s *JobStore) Update(jobID string, mutate func(*ScanJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	mutate(job)
	return nil
}

// Get returns a copy of the job so callers never observe in-flight mutation.
func (s *JobStore) Get(jobID string) (ScanJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return ScanJob{}, ErrJobNotFound
	}
	return *job, nil
}

// List returns all jobs ordered by creation time, newest first. Ties are
// broken by insertion order, newest insertion first.
func (s *JobStore) List() []ScanJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScanJob, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		jobs = append(jobs, *s.jobs[s.order[i]])
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.jobs)
}
