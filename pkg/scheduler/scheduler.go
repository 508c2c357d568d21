// Package scheduler triggers periodic check runs from a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"sitewatch/pkg/log"
)

// DefaultSpec runs a check every six hours.
const DefaultSpec = "0 */6 * * *"

// Job is invoked on every tick. A returned error is logged and does not stop the
// schedule.
type Job func() error

// Scheduler runs a Job on a standard five-field cron schedule. Descriptors such as
// "@hourly" or "@every 30m" are accepted too.
type Scheduler struct {
	spec  string
	cron  *cron.Cron
	entry cron.EntryID
}

// New validates spec and registers job.
func New(spec string, job Job) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	entry, err := c.AddFunc(spec, func() {
		log.Info().Str("schedule", spec).Msg("Running scheduled check")
		if err := job(); err != nil {
			log.Warn().Err(err).Str("schedule", spec).Msg("Scheduled check skipped")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	return &Scheduler{spec: spec, cron: c, entry: entry}, nil
}

// Spec returns the cron expression in use.
func (s *Scheduler) Spec() string {
	return s.spec
}

// Next returns the next activation, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("schedule", s.spec).Time("next", s.Next()).Msg("Scheduler started")
}

// Stop halts the schedule and waits for a running job until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		log.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
