package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/browser"
	"github.com/example/baybook/internal/config"
	"github.com/example/baybook/internal/db"
	"github.com/example/baybook/internal/lock"
	"github.com/example/baybook/internal/migrate"
	"github.com/example/baybook/internal/notify"
	"github.com/example/baybook/internal/runs"
	"github.com/example/baybook/internal/usecases"
)

// app holds what the book and server commands share.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	db      *db.DB
	runs    *runs.Repo
	booking *usecases.BookParking

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

// openDB connects and migrates. It is a no-op without a database URL.
func (a *app) openDB(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		return nil
	}
	d, err := db.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, d.Close)
	if err := d.Ping(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	if err := migrate.Up(ctx, d, a.log); err != nil {
		return err
	}
	a.db = d
	a.runs = runs.NewRepo(d)
	return nil
}

func (a *app) locker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.Redis.Addr == "" {
		return lock.NewLocal(), nil
	}
	r := lock.NewRedis(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	a.closers = append(a.closers, func() { _ = r.Close() })
	if err := r.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return r, nil
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger, history bool) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	bc, err := cfg.BookingConfig()
	if err != nil {
		return nil, err
	}
	if history {
		if err := a.openDB(ctx); err != nil {
			return nil, err
		}
	}
	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.New(cfg.Notify, log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a.booking = &usecases.BookParking{
		Config: bc,
		Launcher: browser.NewLauncher(browser.Options{
			Headless:          cfg.Browser.Headless,
			ExecPath:          cfg.Browser.ExecPath,
			UserAgent:         cfg.Browser.UserAgent,
			Width:             cfg.Browser.Width,
			Height:            cfg.Browser.Height,
			NavigationTimeout: cfg.Timing.NavigationTimeout,
			Log:               log,
		}),
		Pacer:    booking.NewJitter(cfg.Timing.JitterMin, cfg.Timing.JitterMax),
		Locker:   locker,
		LockTTL:  cfg.Redis.LockTTL,
		Notifier: notifier,
		Log:      log,
		Location: loc,
	}
	if a.runs != nil {
		a.booking.History = a.runs
	}
	ok = true
	return a, nil
}
