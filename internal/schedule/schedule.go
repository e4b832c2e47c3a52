// Package schedule runs sync passes on cron schedules until cancelled.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/zulandar/jobvalidator/internal/config"
	"github.com/zulandar/jobvalidator/internal/logging"
	"github.com/zulandar/jobvalidator/internal/syncer"
	"github.com/zulandar/jobvalidator/internal/synclock"
)

// parser accepts standard 5-field cron expressions (minute, hour, dom, month, dow).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate reports whether expr is a valid 5-field cron expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("schedule: invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the first fire time of expr after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// Runner executes one sync pass. *syncer.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, mode syncer.Mode) (*syncer.Result, error)
}

// Entry is one scheduled mode.
type Entry struct {
	Mode syncer.Mode
	Spec string
	Next time.Time
}

// Scheduler fires sync passes from cron expressions.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	log     logrus.FieldLogger
	entries map[cron.EntryID]Entry
	ctx     context.Context
}

// New registers the configured schedules. At least one must be set.
func New(cfg config.ScheduleConfig, runner Runner, logger logrus.FieldLogger) (*Scheduler, error) {
	if cfg.Incremental == "" && cfg.Full == "" {
		return nil, errors.New("schedule: no cron expressions configured (sync.schedule.incremental / sync.schedule.full)")
	}
	log := logging.OrDiscard(logger).WithField("module", "schedule")
	s := &Scheduler{
		runner:  runner,
		log:     log,
		entries: map[cron.EntryID]Entry{},
		ctx:     context.Background(),
	}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{log}),
		cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
	)
	for _, e := range []Entry{
		{Mode: syncer.ModeIncremental, Spec: cfg.Incremental},
		{Mode: syncer.ModeFull, Spec: cfg.Full},
	} {
		if e.Spec == "" {
			continue
		}
		if err := Validate(e.Spec); err != nil {
			return nil, err
		}
		mode := e.Mode
		id, err := s.cron.AddFunc(e.Spec, func() { s.fire(mode) })
		if err != nil {
			return nil, fmt.Errorf("schedule: add %s: %w", mode, err)
		}
		s.entries[id] = e
	}
	return s, nil
}

// Entries returns the scheduled modes with their next fire times.
func (s *Scheduler) Entries() []Entry {
	var out []Entry
	for _, ce := range s.cron.Entries() {
		e := s.entries[ce.ID]
		e.Next = ce.Next
		if e.Next.IsZero() {
			e.Next = ce.Schedule.Next(time.Now())
		}
		out = append(out, e)
	}
	return out
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// a running pass to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	for _, e := range s.Entries() {
		s.log.WithFields(logrus.Fields{"mode": e.Mode, "spec": e.Spec, "next": e.Next}).Info("scheduled")
	}
	<-ctx.Done()
	s.log.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) fire(mode syncer.Mode) {
	log := s.log.WithField("mode", mode)
	res, err := s.runner.Run(s.ctx, mode)
	switch {
	case errors.Is(err, synclock.ErrHeld):
		log.Info("skipped, another sync is running")
	case err != nil:
		log.WithError(err).Error("scheduled sync failed")
	default:
		log.WithFields(logrus.Fields{
			"outcome":   res.Outcome,
			"processed": res.Processed,
			"failed":    res.Failed,
		}).Info("scheduled sync done")
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.WithFields(fields(kv)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.WithError(err).WithFields(fields(kv)).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
