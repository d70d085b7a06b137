// Package housekeeping runs periodic maintenance jobs (audit log rotation
// and retention) alongside the FIX sessions themselves.
package housekeeping

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/robfig/cron/v3"
)

// Job is one named, independently scheduled maintenance task.
type Job struct {
	Name     string
	Schedule string // standard 5-field cron expression
	Run      func()
}

// Scheduler runs a set of independent cron jobs, one per maintenance task,
// logging the start and finish of each run and any panic.
type Scheduler struct {
	cron *cron.Cron
	jobs []Job
}

// NewScheduler registers every job's cron expression and returns a
// Scheduler ready for Start. An invalid expression is a configuration
// error, returned immediately rather than silently dropping the job. A job
// with an empty Schedule is disabled and not registered.
func NewScheduler(jobs []Job) (*Scheduler, error) {
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	s := &Scheduler{cron: c, jobs: jobs}

	for _, j := range jobs {
		job := j
		if job.Schedule == "" {
			continue
		}
		if _, err := c.AddFunc(job.Schedule, func() { s.runJob(job) }); err != nil {
			return nil, fmt.Errorf("registering housekeeping job %q: %w", job.Name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) runJob(job Job) {
	entry := log.WithField("job", job.Name)
	entry.Info("housekeeping job starting")
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("housekeeping job panicked: %v", r)
		}
	}()
	job.Run()
	entry.Info("housekeeping job finished")
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for in-flight jobs to finish or ctx to expire, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		log.Warn("housekeeping scheduler stop timed out")
	}
}
