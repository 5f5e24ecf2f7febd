package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1F47E/go-stereoreel/internal/events"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// JobStatus is what /progress reports for a job.
type JobStatus struct {
	Step     events.Step `json:"step"`
	Message  string      `json:"message"`
	Progress int         `json:"progress"`
	FileName string      `json:"fileName,omitempty"`
	Status   string      `json:"status"`
}

func (s JobStatus) Done() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

type Job struct {
	ID      string
	Input   string
	Output  string
	Created time.Time
	Status  JobStatus
}

type registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*Job)}
}

func (r *registry) add(input, output, fileName string, now time.Time) *Job {
	j := &Job{
		ID:      uuid.NewString(),
		Input:   input,
		Output:  output,
		Created: now,
		Status: JobStatus{
			Step:     "starting",
			Message:  "Upload received, starting processing...",
			FileName: fileName,
			Status:   StatusProcessing,
		},
	}
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	return j
}

func (r *registry) status(id string) (JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return j.Status, true
}

func (r *registry) update(id string, fn func(*JobStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		fn(&j.Status)
	}
}

func (r *registry) active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, j := range r.jobs {
		if !j.Status.Done() {
			n++
		}
	}
	return n
}

// expire drops finished jobs created before cutoff, running ones are kept.
func (r *registry) expire(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, j := range r.jobs {
		if j.Status.Done() && j.Created.Before(cutoff) {
			delete(r.jobs, id)
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
