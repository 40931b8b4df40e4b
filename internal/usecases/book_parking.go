// Package usecases wires a booking run to its lock, history and notifications.
package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/lock"
	"github.com/example/baybook/internal/notify"
	"github.com/example/baybook/internal/runs"
)

const (
	DefaultLockTTL = 30 * time.Minute
	notifyTimeout  = 30 * time.Second
)

// History is where runs are journaled. Repo satisfies it.
type History interface {
	runs.Journal
	Start(ctx context.Context, trigger string, req booking.Request) (uuid.UUID, error)
	Finish(ctx context.Context, id uuid.UUID, res booking.Result, runErr error) error
}

var _ History = (*runs.Repo)(nil)

// BookParking runs one booking under the account lock. History and Notifier
// are optional. Location is the zone whose calendar day the target date is
// counted from; nil means the zone of Now.
type BookParking struct {
	Config     booking.Config
	Launcher   booking.Launcher
	Pacer      booking.Pacer
	Classifier booking.Classifier
	Locker     lock.Locker
	LockTTL    time.Duration
	History    History
	Notifier   notify.Notifier
	Log        *zap.Logger
	Now        func() time.Time
	Location   *time.Location
}

// Report is what Execute returns: the run's ID (uuid.Nil without history) and result.
type Report struct {
	RunID  uuid.UUID
	Result booking.Result
}

func (u *BookParking) now() time.Time {
	if u.Now == nil {
		return time.Now()
	}
	return u.Now()
}

// NewRequest fixes the carpark, plate and target date for one run.
func (u *BookParking) NewRequest() booking.Request {
	now := u.now()
	if u.Location != nil {
		now = now.In(u.Location)
	}
	return booking.NewRequest(u.Config.Carpark, u.Config.VehiclePlate, now)
}

// Execute runs a booking for a freshly built request.
func (u *BookParking) Execute(ctx context.Context, trigger string) (Report, error) {
	return u.Run(ctx, trigger, u.NewRequest())
}

// Run books req. The same request is journaled, driven and reported.
func (u *BookParking) Run(ctx context.Context, trigger string, req booking.Request) (Report, error) {
	if u.Launcher == nil {
		return Report{}, fmt.Errorf("usecases: launcher is nil")
	}
	log := u.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("usecase").With(zap.String("trigger", trigger), zap.String("target_date", req.DateLabel))
	ttl := u.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	locker := u.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}

	release, err := locker.Acquire(ctx, lock.Key(u.Config.Credentials.Username), ttl)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			log.Warn("release lock", zap.Error(err))
		}
	}()

	runner := &booking.Runner{
		Config:     u.Config,
		Launcher:   u.Launcher,
		Request:    req,
		Pacer:      u.Pacer,
		Classifier: u.Classifier,
		Log:        log,
		Now:        u.now,
	}

	var rep Report
	if u.History != nil {
		id, err := u.History.Start(ctx, trigger, req)
		if err != nil {
			return Report{}, err
		}
		rep.RunID = id
		runner.Observer = runs.NewRecorder(u.History, id, log)
		log = log.With(zap.String("run_id", id.String()))
	}

	res, runErr := runner.Run(ctx)
	rep.Result = res

	after, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if u.History != nil {
		if err := u.History.Finish(after, rep.RunID, res, runErr); err != nil {
			log.Error("record run result", zap.Error(err))
		}
	}
	if u.Notifier != nil {
		if err := u.Notifier.Notify(after, notify.MessageFor(res, runErr)); err != nil {
			log.Warn("notify", zap.Error(err))
		}
	}

	log.Info("run finished",
		zap.String("state", string(res.State)),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	return rep, runErr
}
