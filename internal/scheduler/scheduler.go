// Package scheduler runs periodic exports on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// JobStatus represents the status of a job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusScheduled JobStatus = "scheduled"
)

// JobInfo contains information about a scheduled job.
type JobInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     JobStatus `json:"status"`
	LastRun    time.Time `json:"lastRun"`
	NextRun    time.Time `json:"nextRun"`
	Schedule   string    `json:"schedule"`
	RunCount   int       `json:"runCount"`
	ErrorCount int       `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
	// RunOnStart triggers the job once right after Start.
	RunOnStart bool `json:"runOnStart,omitempty"`

	job gocron.Job
}

// JobFunc represents a function that can be scheduled.
type JobFunc func(ctx context.Context) error

// Scheduler manages scheduled jobs. Every job runs in singleton mode: a run that
// is still busy when the next one is due delays it.
type Scheduler struct {
	gocron gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]*JobInfo

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler.
func New() (*Scheduler, error) {
	gocronScheduler, err := gocron.NewScheduler(gocron.WithLogger(newLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		gocron: gocronScheduler,
		jobs:   make(map[string]*JobInfo),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddCronJob adds a job running on a five field cron expression.
func (s *Scheduler) AddCronJob(id, name, schedule string, fn JobFunc, runOnStart bool) error {
	return s.AddJob(id, name, schedule, gocron.CronJob(schedule, false), fn, runOnStart)
}

// AddJob adds a job with an arbitrary gocron definition. schedule is only used for display.
func (s *Scheduler) AddJob(id, name, schedule string, def gocron.JobDefinition, fn JobFunc, runOnStart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job %s already exists", id)
	}

	info := &JobInfo{
		ID:         id,
		Name:       name,
		Status:     JobStatusScheduled,
		Schedule:   schedule,
		RunOnStart: runOnStart,
	}

	job, err := s.gocron.NewJob(def,
		gocron.NewTask(s.wrapJobFunc(id, fn)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", id, err)
	}
	info.job = job

	s.jobs[id] = info
	log.Info("Added job to scheduler", "id", id, "name", name, "schedule", schedule)
	return nil
}

// Start starts the scheduler and triggers the jobs marked to run on start.
func (s *Scheduler) Start() {
	log.Info("Starting job scheduler")
	s.gocron.Start()

	var instant []string
	s.mu.Lock()
	for id, info := range s.jobs {
		if nextRun, err := info.job.NextRun(); err == nil {
			info.NextRun = nextRun
			log.Debug("Next run time for job", "id", id, "nextRun", nextRun)
		}
		if info.RunOnStart {
			instant = append(instant, id)
		}
	}
	s.mu.Unlock()

	for _, id := range instant {
		if err := s.RunJobNow(id); err != nil {
			log.Error("Failed to run job after start", "id", id, "error", err)
		}
	}
}

// Run starts the scheduler and blocks until ctx is done, then shuts it down.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	return s.Stop()
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	log.Info("Stopping job scheduler")
	s.cancel()
	return s.gocron.Shutdown()
}

// RunJobNow triggers a job immediately.
func (s *Scheduler) RunJobNow(id string) error {
	s.mu.Lock()
	info, exists := s.jobs[id]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}

	log.Info("Manually triggering job", "id", id, "name", info.Name)
	if err := info.job.RunNow(); err != nil {
		return fmt.Errorf("failed to trigger job %s: %w", id, err)
	}
	return nil
}

// Jobs returns a snapshot of every job, ordered by id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := slices.Sorted(maps.Keys(s.jobs))
	jobs := make([]JobInfo, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, *s.jobs[id])
	}
	return jobs
}

// Job returns a snapshot of a single job.
func (s *Scheduler) Job(id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, exists := s.jobs[id]
	if !exists {
		return JobInfo{}, false
	}
	return *info, true
}

// wrapJobFunc wraps a job function to update job statistics.
func (s *Scheduler) wrapJobFunc(id string, fn JobFunc) func() {
	return func() {
		s.mu.Lock()
		info := s.jobs[id]
		if info == nil {
			s.mu.Unlock()
			log.Error("Job info not found", "id", id)
			return
		}
		info.Status = JobStatusRunning
		info.LastRun = time.Now()
		info.RunCount++
		name := info.Name
		s.mu.Unlock()

		log.Info("Starting job", "id", id, "name", name)
		err := fn(s.ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if nextRun, nerr := info.job.NextRun(); nerr == nil {
			info.NextRun = nextRun
		}
		if err != nil {
			log.Error("Job failed", "id", id, "name", name, "error", err)
			info.Status = JobStatusFailed
			info.ErrorCount++
			info.LastError = err.Error()
			return
		}
		log.Info("Job completed successfully", "id", id, "name", name)
		info.Status = JobStatusCompleted
		info.LastError = ""
	}
}
