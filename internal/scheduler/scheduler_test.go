package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func waitForStatus(t *testing.T, s *Scheduler, id string, status JobStatus) JobInfo {
	t.Helper()
	var info JobInfo
	require.Eventually(t, func() bool {
		info, _ = s.Job(id)
		return info.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return info
}

func TestAddCronJobValidation(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddCronJob("export_radarr", "Export radarr", "0 3 * * *", noop, false))
	assert.Error(t, s.AddCronJob("export_radarr", "Export radarr", "0 4 * * *", noop, false))
	assert.Error(t, s.AddCronJob("broken", "Broken", "not a cron", noop, false))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "export_radarr", jobs[0].ID)
	assert.Equal(t, "0 3 * * *", jobs[0].Schedule)
	assert.Equal(t, JobStatusScheduled, jobs[0].Status)
}

func TestRunOnStart(t *testing.T) {
	s := newScheduler(t)
	var runs atomic.Int32
	require.NoError(t, s.AddJob("export_sonarr", "Export sonarr", "hourly",
		gocron.DurationJob(time.Hour),
		func(context.Context) error {
			runs.Add(1)
			return nil
		},
		true,
	))

	s.Start()

	info := waitForStatus(t, s, "export_sonarr", JobStatusCompleted)
	assert.Equal(t, 1, info.RunCount)
	assert.Zero(t, info.ErrorCount)
	assert.False(t, info.LastRun.IsZero())
	assert.EqualValues(t, 1, runs.Load())
}

func TestFailingJob(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.AddJob("export_radarr", "Export radarr", "hourly",
		gocron.DurationJob(time.Hour),
		func(context.Context) error { return errors.New("radarr unreachable") },
		false,
	))
	s.Start()

	require.NoError(t, s.RunJobNow("export_radarr"))

	info := waitForStatus(t, s, "export_radarr", JobStatusFailed)
	assert.Equal(t, 1, info.ErrorCount)
	assert.Equal(t, "radarr unreachable", info.LastError)
}

func TestRunUnknownJob(t *testing.T) {
	s := newScheduler(t)
	assert.Error(t, s.RunJobNow("missing"))

	_, ok := s.Job("missing")
	assert.False(t, ok)
}

func TestRunStopsWithContext(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
