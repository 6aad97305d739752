package queue

import (
	"sort"
	"sync"
)

const defaultRetention = 1000

// Registry indexes jobs by ID so their results can be fetched later.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention int
}

// NewRegistry keeps at most retention finished jobs; older finished jobs
// are evicted first. Non-positive retention uses the default.
func NewRegistry(retention int) *Registry {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Registry{jobs: make(map[string]*Job), retention: retention}
}

// Add registers j.
func (r *Registry) Add(j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
	r.evictLocked()
}

// Get returns the job with id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// CancelAll cancels every unfinished job.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs {
		j.Cancel()
	}
}

func (r *Registry) evictLocked() {
	var finished []Snapshot
	for _, j := range r.jobs {
		if s := j.Snapshot(); s.Status.Final() {
			finished = append(finished, s)
		}
	}
	excess := len(finished) - r.retention
	if excess <= 0 {
		return
	}
	sort.Slice(finished, func(a, b int) bool { return finished[a].Finished.Before(finished[b].Finished) })
	for _, s := range finished[:excess] {
		delete(r.jobs, s.ID)
	}
}
