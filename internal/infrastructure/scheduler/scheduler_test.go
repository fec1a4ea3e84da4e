package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block time.Duration
}

func (j *testJob) Name() string        { return j.name }
func (j *testJob) Description() string { return "test job " + j.name }

func (j *testJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block > 0 {
		select {
		case <-time.After(j.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestScheduler_RegisterValidates(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	require.NoError(t, s.Register(&testJob{name: "sweep"}, "@every 1h"))
	assert.ErrorIs(t, s.Register(&testJob{name: "sweep"}, "@every 1h"), ErrJobExists)
	assert.Error(t, s.Register(&testJob{name: "bad"}, "not a schedule"))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "sweep", jobs[0].Name)
	assert.Equal(t, "@every 1h", jobs[0].Schedule)
}

func TestScheduler_RunNowRecordsResult(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	boom := errors.New("boom")
	job := &testJob{name: "warm", err: boom}
	require.NoError(t, s.Register(job, "@every 1h"))

	var hooked JobResult
	s.OnJobComplete(func(r JobResult) { hooked = r })

	result, err := s.RunNow(context.Background(), "warm")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.True(t, result.Manual)
	assert.Equal(t, "warm", hooked.JobName)

	info := s.ListJobs()[0]
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
	assert.Len(t, s.GetHistory(10), 1)
	assert.Equal(t, int64(1), s.GetMetrics().Snapshot().TotalFailures)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_JobTimeout(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.JobTimeout = 10 * time.Millisecond
	s := NewScheduler(cfg)
	require.NoError(t, s.Register(&testJob{name: "slow", block: time.Second}, "@every 1h"))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_FiresAndStops(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &testJob{name: "tick"}
	require.NoError(t, s.Register(job, "@every 1s"))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(ctx), ErrNotRunning)
}
