package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJob(t *testing.T) {
	m := NewManager()
	job := m.CreateJob("batch", "compare iris")

	_, err := uuid.Parse(job.ID)
	assert.NoError(t, err)
	assert.Equal(t, JobPending, job.GetStatus())

	got, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)

	_, ok = m.GetJob("missing")
	assert.False(t, ok)
}

func TestStartCompletes(t *testing.T) {
	m := NewManager()
	job := m.Start(context.Background(), "batch", "demo", func(ctx context.Context, job *Job) (any, error) {
		for i := 0; i <= 4; i++ {
			job.SetProgress(i, 4)
		}
		return "done", nil
	})

	require.NoError(t, job.Wait(context.Background()))
	assert.Equal(t, JobCompleted, job.GetStatus())
	assert.Equal(t, 1.0, job.GetProgress())
	assert.Equal(t, "done", job.GetResult())
	assert.NotNil(t, job.EndTime)
	assert.Len(t, job.GetLogs(), 2)
}

func TestStartFails(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	job := m.Start(context.Background(), "batch", "demo", func(ctx context.Context, job *Job) (any, error) {
		return nil, boom
	})

	assert.ErrorIs(t, job.Wait(context.Background()), boom)
	assert.Equal(t, JobFailed, job.GetStatus())
}

func TestCancelJob(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	job := m.Start(context.Background(), "batch", "long", func(ctx context.Context, job *Job) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	require.NoError(t, m.CancelJob(job.ID))
	require.NoError(t, job.Wait(context.Background()))
	assert.Equal(t, JobCancelled, job.GetStatus())

	assert.ErrorIs(t, m.CancelJob(job.ID), ErrJobNotRunning)
	assert.ErrorIs(t, m.CancelJob("missing"), ErrJobNotFound)
}

func TestWaitHonoursContext(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	job := m.Start(context.Background(), "batch", "blocked", func(ctx context.Context, job *Job) (any, error) {
		<-release
		return nil, nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, job.Wait(ctx), context.DeadlineExceeded)
}

func TestListJobsOldestFirst(t *testing.T) {
	m := NewManager()
	first := m.CreateJob("batch", "first")
	time.Sleep(time.Millisecond)
	second := m.CreateJob("incremental", "second")

	jobs := m.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)
}

func TestProgressWithoutTotal(t *testing.T) {
	job := NewManager().CreateJob("batch", "")
	assert.Equal(t, 0.0, job.GetProgress())
}
