package exports

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status describes the lifecycle stage of an export job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrQueueFull is returned by Enqueue when the worker cannot accept more jobs.
var ErrQueueFull = errors.New("exports: queue full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("exports: worker stopped")

// Job tracks one queued export request.
type Job struct {
	ID          string     `json:"id"`
	Request     Request    `json:"request"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j Job) copy() Job {
	dup := j
	if len(j.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), j.Artifacts...)
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		dup.CompletedAt = &completed
	}
	return dup
}

// Worker executes export jobs asynchronously on a single goroutine.
type Worker struct {
	runner *Runner
	opts   options

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a worker with room for queueSize pending jobs.
func NewWorker(runner *Runner, queueSize int, opts ...Option) *Worker {
	if queueSize <= 0 {
		queueSize = 16
	}
	o := runner.opts
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		runner: runner,
		opts:   o,
		queue:  make(chan string, queueSize),
		jobs:   make(map[string]*Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the current job. Jobs still
// queued are marked failed with ErrStopped.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.drain()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case id := <-w.queue:
			if w.ctx.Err() != nil {
				w.drain(id)
				return
			}
			w.process(id)
		}
	}
}

// drain fails the given jobs and every job left in the queue. It holds mu so
// that no Enqueue racing with Stop can slip a job in afterwards.
func (w *Worker) drain(ids ...string) {
	now := w.opts.clock.Now()
	var failed []Job
	w.mu.Lock()
	for {
		var id string
		if len(ids) > 0 {
			id, ids = ids[0], ids[1:]
		} else {
			select {
			case id = <-w.queue:
			default:
			}
		}
		if id == "" {
			break
		}
		job, ok := w.jobs[id]
		if !ok || job.Status != StatusQueued {
			continue
		}
		job.Status = StatusFailed
		job.Error = ErrStopped.Error()
		completed := now
		job.UpdatedAt = now
		job.CompletedAt = &completed
		failed = append(failed, job.copy())
	}
	w.mu.Unlock()
	for _, job := range failed {
		w.audit(context.Background(), job)
	}
}

// Enqueue validates req and schedules it, returning the queued job.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Job, error) {
	if w.ctx.Err() != nil {
		return Job{}, ErrStopped
	}
	format, _, err := w.runner.resolve(req)
	if err != nil {
		return Job{}, err
	}
	req.Format = format

	now := w.opts.clock.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return Job{}, ErrStopped
	}
	select {
	case w.queue <- job.ID:
	default:
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	w.jobs[job.ID] = job
	snapshot := job.copy()
	w.mu.Unlock()

	w.audit(ctx, snapshot)
	return snapshot, nil
}

// Job returns a snapshot of the job with id.
func (w *Worker) Job(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

func (w *Worker) process(id string) {
	w.mu.RLock()
	job, ok := w.jobs[id]
	var req Request
	if ok {
		req = job.Request
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	started := w.opts.clock.Now()
	w.transition(id, StatusRunning, "", nil)
	artifacts, err := w.runner.Run(w.ctx, req)
	if err != nil {
		w.transition(id, StatusFailed, err.Error(), nil)
	} else {
		w.transition(id, StatusSucceeded, "", artifacts)
	}
	w.opts.metrics.Observe(w.ctx, "export_job", err == nil, w.opts.clock.Now().Sub(started))
}

// transition records the new status and audits the resulting snapshot.
func (w *Worker) transition(id string, status Status, message string, artifacts []Artifact) {
	now := w.opts.clock.Now()
	w.mu.Lock()
	job, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	job.Status = status
	job.Error = message
	job.UpdatedAt = now
	if status == StatusSucceeded || status == StatusFailed {
		job.Artifacts = artifacts
		job.CompletedAt = &now
	}
	snapshot := job.copy()
	w.mu.Unlock()
	w.audit(w.ctx, snapshot)
}

func (w *Worker) audit(ctx context.Context, job Job) {
	attrs := []any{
		"job", job.ID,
		"status", job.Status,
		"space", job.Request.Space,
		"export", job.Request.Export,
		"organization", job.Request.Organization.ID,
		"format", job.Request.Format,
		"requested_by", job.Request.RequestedBy,
	}
	switch job.Status {
	case StatusFailed:
		w.opts.logger.WarnContext(ctx, "export job", append(attrs, "error", job.Error)...)
	case StatusSucceeded:
		w.opts.logger.InfoContext(ctx, "export job", append(attrs, "artifacts", len(job.Artifacts))...)
	default:
		w.opts.logger.InfoContext(ctx, "export job", attrs...)
	}
}
