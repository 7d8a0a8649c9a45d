// Package scheduler provides cron-based maintenance jobs for FolioPipe.
//
// Session backends that do not expire keys on their own (the SQL stores and
// the in-memory store) are purged periodically from here.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPurgeSchedule runs the expired-session purge every five minutes.
const DefaultPurgeSchedule = "*/5 * * * *"

// DefaultPurgeTimeout bounds a single purge run.
const DefaultPurgeTimeout = 30 * time.Second

// Purger deletes expired rows and reports how many sessions were removed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddPurgeJob schedules RunPurge for p on expr.
func (s *Scheduler) AddPurgeJob(expr string, p Purger) error {
	if expr == "" {
		expr = DefaultPurgeSchedule
	}
	slog.Debug("Scheduler AddPurgeJob", "schedule", expr)
	return s.AddJob(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultPurgeTimeout)
		defer cancel()
		RunPurge(ctx, p)
	})
}

// RunPurge runs one purge and logs the outcome.
func RunPurge(ctx context.Context, p Purger) int64 {
	n, err := p.PurgeExpired(ctx)
	if err != nil {
		slog.Error("Session purge failed", "error", err)
		return n
	}
	if n > 0 {
		slog.Info("Purged expired sessions", "count", n)
	}
	return n
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
