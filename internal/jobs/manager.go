package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job is not running")
)

func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job tracks one experiment run. Progress is counted in evaluation units
// (folds for batch runs, classifier/dataset pairs for incremental runs).
type Job struct {
	ID          string
	Type        string
	Status      JobStatus
	Completed   int
	Total       int
	StartTime   time.Time
	EndTime     *time.Time
	Error       error
	Result      any
	Description string
	Logs        []string
	cancelFunc  context.CancelFunc
	done        chan struct{}
	mu          sync.RWMutex
}

type Manager struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
	}
}

func (m *Manager) CreateJob(jobType, description string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Status:      JobPending,
		StartTime:   time.Now(),
		Description: description,
		Logs:        []string{},
		done:        make(chan struct{}),
	}

	m.jobs[job.ID] = job
	return job
}

// Start runs fn in the background as a new job. fn receives a context that
// CancelJob cancels and the job itself for progress reporting.
func (m *Manager) Start(ctx context.Context, jobType, description string, fn func(ctx context.Context, job *Job) (any, error)) *Job {
	job := m.CreateJob(jobType, description)
	ctx, cancel := context.WithCancel(ctx)
	job.SetCancelFunc(cancel)
	job.SetStatus(JobRunning)
	job.AddLog("started")

	go func() {
		defer cancel()
		defer close(job.done)

		result, err := fn(ctx, job)
		job.SetResult(result)
		switch {
		case errors.Is(err, context.Canceled):
			job.SetStatus(JobCancelled)
			job.AddLog("cancelled")
		case err != nil:
			job.SetError(err)
			job.AddLog(fmt.Sprintf("failed: %v", err))
		default:
			job.SetStatus(JobCompleted)
			job.AddLog("completed")
		}
	}()
	return job
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

// ListJobs returns every job, oldest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// CancelJob asks a running job to stop. The job stays running until its
// function returns; a batch run finishes the dataset in progress first.
func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.Status != JobRunning {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	if job.cancelFunc != nil {
		job.cancelFunc()
	}
	return nil
}

func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	if status.Finished() {
		now := time.Now()
		j.EndTime = &now
	}
}

// SetProgress records completed out of total units. It matches
// comparison.ProgressFunc so a job can observe a runner directly.
func (j *Job) SetProgress(completed, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Completed = completed
	j.Total = total
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timestamp := time.Now().Format("15:04:05")
	j.Logs = append(j.Logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

func (j *Job) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Error = err
	j.Status = JobFailed
	now := time.Now()
	j.EndTime = &now
}

func (j *Job) SetResult(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = result
}

func (j *Job) SetCancelFunc(cancelFunc context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelFunc = cancelFunc
}

func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// GetProgress returns the finished fraction in [0, 1].
func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.Total == 0 {
		return 0
	}
	return float64(j.Completed) / float64(j.Total)
}

func (j *Job) GetCounts() (completed, total int) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Completed, j.Total
}

func (j *Job) GetError() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Error
}

func (j *Job) GetResult() any {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Result
}

func (j *Job) GetLogs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.Logs))
	copy(logs, j.Logs)
	return logs
}

// Done is closed when a job started with Start has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.GetError()
	case <-ctx.Done():
		return ctx.Err()
	}
}
