// Package scheduler starts booking runs on the configured weekdays and time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/lock"
	"github.com/example/baybook/internal/runs"
	"github.com/example/baybook/internal/usecases"
)

// Job is one booking run. NewRequest fixes the target date, and Run books
// exactly that request.
type Job interface {
	NewRequest() booking.Request
	Run(ctx context.Context, trigger string, req booking.Request) (usecases.Report, error)
}

var _ Job = (*usecases.BookParking)(nil)

// BookedChecker reports whether a date already has a confirmed booking.
type BookedChecker interface {
	BookedFor(ctx context.Context, date time.Time) (bool, error)
}

// Scheduler fires Job at Spec. A date that already has a confirmed booking is skipped.
type Scheduler struct {
	Spec     string
	Location *time.Location
	Job      Job
	Booked   BookedChecker
	Log      *zap.Logger
	Now      func() time.Time

	wg sync.WaitGroup
}

// CronSpec builds a standard five-field cron expression from weekdays
// (0 is Sunday), hour and minute.
func CronSpec(weekdays []int, hour, minute int) (string, error) {
	if len(weekdays) == 0 {
		return "", fmt.Errorf("scheduler: no weekdays")
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("scheduler: invalid time %02d:%02d", hour, minute)
	}
	seen := map[int]bool{}
	var days []int
	for _, d := range weekdays {
		if d < 0 || d > 6 {
			return "", fmt.Errorf("scheduler: invalid weekday %d", d)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(parts, ",")), nil
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log.Named("scheduler")
}

func (s *Scheduler) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s *Scheduler) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Next returns the first firing time after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(s.Spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: %w", err)
	}
	return sched.Next(t.In(s.location())), nil
}

// Run blocks until ctx is done, then waits for an in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.logger()
	c := cron.New(
		cron.WithLocation(s.location()),
		cron.WithLogger(cronLogger{log.Sugar()}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Sugar()})),
	)
	if _, err := c.AddFunc(s.Spec, func() { s.Fire(ctx) }); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	c.Start()
	if next, err := s.Next(s.now()); err == nil {
		log.Info("scheduler started", zap.String("spec", s.Spec), zap.Time("next", next))
	}

	<-ctx.Done()
	<-c.Stop().Done()
	s.wg.Wait()
	return ctx.Err()
}

// Fire performs one scheduled run now.
func (s *Scheduler) Fire(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()
	log := s.logger()

	req := s.Job.NewRequest()
	if s.Booked != nil {
		booked, err := s.Booked.BookedFor(ctx, req.TargetDate)
		if err != nil {
			log.Error("scheduler: booked check failed", zap.Error(err))
		} else if booked {
			log.Info("already booked, skipping", zap.String("target_date", req.DateLabel))
			return
		}
	}

	rep, err := s.Job.Run(ctx, runs.TriggerSchedule, req)
	switch {
	case errors.Is(err, lock.ErrLocked):
		log.Info("another run holds the account, skipping")
	case err != nil:
		log.Error("scheduled run failed", zap.Error(err), zap.String("run_id", rep.RunID.String()))
	default:
		log.Info("scheduled run finished", zap.String("state", string(rep.Result.State)), zap.String("run_id", rep.RunID.String()))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
