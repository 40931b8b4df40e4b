package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/baybook/internal/auth"
	"github.com/example/baybook/internal/scheduler"
	"github.com/example/baybook/internal/web"
)

func newServerCmd() *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run scheduled bookings and the status dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			hashKey, blockKey, err := cfg.DecodeKeys()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			spec, err := scheduler.CronSpec(cfg.Schedule.Weekdays, cfg.Schedule.Hour, cfg.Schedule.Minute)
			if err != nil {
				return err
			}

			s := &scheduler.Scheduler{
				Spec:     spec,
				Location: loc,
				Job:      a.booking,
				Booked:   a.runs,
				Log:      log,
			}
			ws := &web.Server{
				Auth:    auth.NewStore(a.db, hashKey, blockKey),
				Runs:    a.runs,
				Booker:  a.booking,
				NextRun: s.Next,
				Log:     log,
				Context: ctx,
			}
			var schedule func(context.Context) error
			if !noSchedule {
				schedule = s.Run
			}
			return serve(ctx, schedule, func(ctx context.Context) error {
				defer ws.Wait()
				return web.Start(ctx, cfg.Web.ListenAddr, ws.Routes(), log)
			})
		},
	}

	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the dashboard without scheduled runs")
	return cmd
}

// serve runs the dashboard and, unless schedule is nil, the scheduler. It
// returns once both have stopped, so in-flight runs finish before the caller
// closes the database and lock clients. Either side failing stops the other.
func serve(ctx context.Context, schedule, dashboard func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if schedule != nil {
		g.Go(func() error {
			if err := schedule(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return dashboard(gctx) })
	return g.Wait()
}
