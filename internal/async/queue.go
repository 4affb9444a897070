// Package async runs case evaluations off the request path.
package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

var ErrQueueClosed = errors.New("evaluation queue is shutting down")

// Job is one queued case evaluation.
type Job struct {
	ID          string
	CaseID      string
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Evaluator is the work a queue worker performs.
type Evaluator interface {
	Evaluate(ctx context.Context, caseID string) (entity.Report, error)
}

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// JobState is what a caller polling for a job sees.
type JobState struct {
	Job    Job            `json:"job"`
	Status JobStatus      `json:"status"`
	Error  string         `json:"error,omitempty"`
	Report *entity.Report `json:"report,omitempty"`
}

// Results keeps job states in memory. Only the newest Limit finished jobs are retained.
type Results struct {
	mu       sync.RWMutex
	states   map[string]*JobState
	finished []string
	limit    int
}

func NewResults(limit int) *Results {
	if limit <= 0 {
		limit = 1000
	}
	return &Results{states: make(map[string]*JobState), limit: limit}
}

func (r *Results) queued(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[job.ID] = &JobState{Job: job, Status: JobQueued}
}

func (r *Results) running(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[id]; ok {
		s.Status = JobRunning
	}
}

func (r *Results) finish(id string, report *entity.Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[id]
	if !ok {
		return
	}
	s.Report = report
	s.Status = JobDone
	if err != nil {
		s.Status = JobFailed
		s.Error = err.Error()
	}
	r.finished = append(r.finished, id)
	for len(r.finished) > r.limit {
		delete(r.states, r.finished[0])
		r.finished = r.finished[1:]
	}
}

func (r *Results) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, id)
}

// Get returns a copy of a job's state.
func (r *Results) Get(id string) (JobState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[id]
	if !ok {
		return JobState{}, false
	}
	return *s, true
}
