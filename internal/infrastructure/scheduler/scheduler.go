// Package scheduler runs the engine's periodic jobs (full sweeps and ranking
// warm-ups) on cron schedules. Overlapping runs of one job are skipped and
// every run is bounded by a timeout.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping or the run
	// exceeds its timeout.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

var (
	// ErrJobNotFound is returned for unknown job names.
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrJobExists is returned when a name is registered twice.
	ErrJobExists = errors.New("scheduler: job already registered")

	// ErrNotRunning is returned by Stop on an idle scheduler.
	ErrNotRunning = errors.New("scheduler: not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *zap.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// JobTimeout bounds a single run (default: 10m).
	JobTimeout time.Duration

	// MaxHistorySize is the maximum number of job results kept.
	MaxHistorySize int
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:       time.UTC,
		JobTimeout:     10 * time.Minute,
		MaxHistorySize: 200,
	}
}

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	cron       *cron.Cron
	logger     *zap.Logger
	jobTimeout time.Duration
	maxHistory int

	jobs    map[string]*scheduledJob
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	metrics    *SchedulerMetrics
	runHistory []JobResult

	onJobComplete func(result JobResult)
}

type scheduledJob struct {
	job       Job
	spec      string
	entryID   cron.EntryID
	runCount  int64
	failCount int64
	lastRun   *JobResult
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 10 * time.Minute
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 200
	}
	log := logger.OrNop(config.Logger).With(logger.Component("scheduler"))
	cronLog := cronLogger{log: log.Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(config.Timezone),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		logger:     log,
		jobTimeout: config.JobTimeout,
		maxHistory: config.MaxHistorySize,
		jobs:       make(map[string]*scheduledJob),
		ctx:        ctx,
		cancel:     cancel,
		metrics:    NewSchedulerMetrics(),
	}
}

// Register adds a job under a cron spec ("*/5 * * * *", "@every 10m", "@daily").
func (s *Scheduler) Register(job Job, spec string) error {
	if job == nil {
		return errors.New("scheduler: job cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name())
	}
	sj := &scheduledJob{job: job, spec: spec}
	id, err := s.cron.AddFunc(spec, func() { s.runJob(s.ctx, sj, false) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", spec, job.Name(), err)
	}
	sj.entryID = id
	s.jobs[job.Name()] = sj

	s.logger.Info("job registered", logger.JobName(job.Name()), zap.String("schedule", spec))
	return nil
}

// Start begins firing schedules. ctx cancellation stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.ListJobs())))

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop(context.Background())
		case <-s.ctx.Done():
		}
	}()
	return nil
}

// Stop cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped", zap.Any("metrics", s.metrics.Snapshot()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

// IsRunning reports whether schedules are firing.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, ok := s.jobs[jobName]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	result := s.runJob(ctx, sj, true)
	return &result, result.Error
}

// OnJobComplete sets a hook called after every run.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

func (s *Scheduler) runJob(parent context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	ctx, cancel := context.WithTimeout(parent, s.jobTimeout)
	defer cancel()

	log := s.logger.With(logger.JobName(name))
	log.Info("job started", zap.Bool("manual", manual))

	startedAt := time.Now()
	err := sj.job.Run(ctx)
	completedAt := time.Now()

	result := JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}
	s.metrics.RecordExecution(name, result.Duration, err == nil)

	s.mu.Lock()
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	sj.lastRun = &result
	s.runHistory = append(s.runHistory, result)
	if len(s.runHistory) > s.maxHistory {
		s.runHistory = s.runHistory[len(s.runHistory)-s.maxHistory:]
	}
	hook := s.onJobComplete
	s.mu.Unlock()

	if err != nil {
		log.Error("job failed", logger.Latency(result.Duration), zap.Error(err))
	} else {
		log.Info("job completed", logger.Latency(result.Duration))
	}
	if hook != nil {
		hook(result)
	}
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastRun     *JobResult
}

// ListJobs returns registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		out = append(out, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.spec,
			NextRun:     s.cron.Entry(sj.entryID).Next,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastRun:     sj.lastRun,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetHistory returns the most recent results, newest last.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}
	out := make([]JobResult, limit)
	copy(out, s.runHistory[len(s.runHistory)-limit:])
	return out
}

// GetMetrics returns the scheduler metrics.
func (s *Scheduler) GetMetrics() *SchedulerMetrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks job executions.
type SchedulerMetrics struct {
	mu            sync.Mutex
	executions    map[string]int64
	failures      map[string]int64
	totalDuration map[string]time.Duration
}

// NewSchedulerMetrics creates a metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		executions:    make(map[string]int64),
		failures:      make(map[string]int64),
		totalDuration: make(map[string]time.Duration),
	}
}

// RecordExecution records one run.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[jobName]++
	m.totalDuration[jobName] += duration
	if !success {
		m.failures[jobName]++
	}
}

// MetricsSnapshot is a point-in-time copy of the metrics.
type MetricsSnapshot struct {
	TotalExecutions int64                    `json:"total_executions"`
	TotalFailures   int64                    `json:"total_failures"`
	AvgDuration     map[string]time.Duration `json:"avg_duration"`
}

// Snapshot returns a copy of current metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{AvgDuration: make(map[string]time.Duration, len(m.executions))}
	for name, n := range m.executions {
		s.TotalExecutions += n
		s.TotalFailures += m.failures[name]
		s.AvgDuration[name] = m.totalDuration[name] / time.Duration(n)
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
