package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"vpn-shop-bot/internal/logger"
)

// Job is a scheduled unit of work
type Job func(ctx context.Context) error

// cronLogger adapts our logger to cron.Logger
type cronLogger struct {
	logger *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithField("details", fmt.Sprint(keysAndValues...)).ErrorErr(err, "cron: "+msg)
}

// Scheduler runs background jobs on cron specs
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger
	ctx    context.Context
}

// NewScheduler creates a scheduler evaluating specs in loc
func NewScheduler(loc *time.Location, log *logger.Logger) *Scheduler {
	cl := cronLogger{logger: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: log,
		ctx:    context.Background(),
	}
}

// Add registers job under name. Jobs receive the context passed to Run.
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.WithField("job", name).ErrorErr(err, "Scheduled job failed")
			return
		}
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": time.Since(start).String(),
		}).Debug("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("invalid spec %q for job %s: %w", spec, name, err)
	}
	s.logger.WithFields(map[string]interface{}{
		"job":  name,
		"spec": spec,
	}).Info("Job scheduled")
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("Scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

// SpecInterval returns the gap between the next two activations of spec in loc
func SpecInterval(spec string, loc *time.Location) (time.Duration, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid spec %q: %w", spec, err)
	}
	first := schedule.Next(time.Now().In(loc))
	return schedule.Next(first).Sub(first), nil
}
