package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secprobe/internal/application/orchestrator"
	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/probe"
	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
)

// RunAllJob is the job type that runs every batch probe.
const RunAllJob = "run-all"

const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// Runner executes probes on behalf of the API.
type Runner interface {
	RunOne(ctx context.Context, name string, params probe.Params) (*report.Report, error)
	RunAll(ctx context.Context, params probe.Params, onReport orchestrator.ReportFunc) []*report.Report
	Suite() *probe.Suite
}

type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

type Job struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Status     string           `json:"status"`
	Target     string           `json:"target,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Progress   Progress         `json:"progress"`
	Reports    []*report.Report `json:"reports,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type JobRequest struct {
	Type   string       `json:"type"`
	Params probe.Params `json:"params"`
}

// JobManager runs probe jobs in the background and keeps their state in memory.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int

	runner Runner
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJobManager(runner Runner, logger *zap.Logger) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     1000,
		runner:      runner,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// StartJob validates req and runs it in the background. The job outlives the
// request that created it; Close cancels it.
func (m *JobManager) StartJob(_ context.Context, req JobRequest) (*Job, error) {
	if req.Type == "" {
		return nil, fmt.Errorf("%w: job type", sharedErrors.ErrMissingRequired)
	}
	total := len(m.runner.Suite().Batch())
	if req.Type != RunAllJob {
		if _, err := m.runner.Suite().Lookup(req.Type); err != nil {
			return nil, err
		}
		total = 1
	}

	job := m.createJob(req, total)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(job.ID, req)
	}()
	return job, nil
}

func (m *JobManager) createJob(req JobRequest, total int) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Status:    JobPending,
		Target:    req.Params.TargetURL,
		CreatedAt: m.now().UTC(),
		Progress:  Progress{Total: total},
	}
	m.jobs[job.ID] = job
	m.pruneLocked()
	m.broadcast(snapshot(job))
	return snapshot(job)
}

func (m *JobManager) run(id string, req JobRequest) {
	m.UpdateJob(id, func(j *Job) {
		started := m.now().UTC()
		j.StartedAt = &started
		j.Status = JobRunning
	})

	var err error
	if req.Type == RunAllJob {
		m.runner.RunAll(m.ctx, req.Params, func(index, total int, r *report.Report) {
			m.UpdateJob(id, func(j *Job) {
				j.Reports = append(j.Reports, r)
				j.Progress = Progress{Done: index, Total: total}
			})
		})
	} else {
		var r *report.Report
		r, err = m.runner.RunOne(m.ctx, req.Type, req.Params)
		if err == nil {
			m.UpdateJob(id, func(j *Job) {
				j.Reports = append(j.Reports, r)
				j.Progress.Done = 1
			})
		}
	}

	m.UpdateJob(id, func(j *Job) {
		finished := m.now().UTC()
		j.FinishedAt = &finished
		if err != nil {
			j.Status = JobError
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
	})
	if err != nil {
		m.logger.Warn("job failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (m *JobManager) UpdateJob(id string, update func(*Job)) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	m.broadcast(snapshot(job))
	return snapshot(job)
}

func (m *JobManager) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		return snapshot(job), nil
	}
	return nil, fmt.Errorf("%w: %s", sharedErrors.ErrJobNotFound, id)
}

func (m *JobManager) ListJobs(_ context.Context, limit int) ([]Job, error) {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *snapshot(job))
	}
	m.mu.RUnlock()

	// Newest first; ties broken by ID for a stable order.
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// broadcast must be called with m.mu held. Slow subscribers miss updates.
func (m *JobManager) broadcast(job *Job) {
	for ch := range m.subscribers {
		select {
		case ch <- *job:
		default:
			m.logger.Debug("dropped job update for slow subscriber", zap.String("job_id", job.ID))
		}
	}
}

// pruneLocked drops the oldest finished jobs once maxJobs is exceeded.
func (m *JobManager) pruneLocked() {
	excess := len(m.jobs) - m.maxJobs
	if excess <= 0 {
		return
	}
	finished := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Status == JobDone || job.Status == JobError {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})
	for i := 0; i < excess && i < len(finished); i++ {
		delete(m.jobs, finished[i].ID)
	}
}

// SetMaxJobs configures the maximum number of jobs to retain in memory
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}

// MaxJobs returns the retention limit.
func (m *JobManager) MaxJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxJobs
}

// Close cancels running jobs and waits for them to finish.
func (m *JobManager) Close(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("jobs still running"), ctx.Err())
	}
}

func snapshot(job *Job) *Job {
	c := *job
	c.Reports = append([]*report.Report(nil), job.Reports...)
	return &c
}
