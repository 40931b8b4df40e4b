package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/runs"
)

func newBookCmd() *cobra.Command {
	var (
		noHistory bool
		headful   bool
	)

	c := &cobra.Command{
		Use:   "book",
		Short: "Run one booking now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if headful {
				cfg.Browser.Headless = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, log, !noHistory)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.booking.Execute(ctx, runs.TriggerManual)
			out := cmd.OutOrStdout()
			res := rep.Result
			switch {
			case err != nil:
				return err
			case res.State == booking.StateFullyBooked:
				fmt.Fprintf(out, "%s is fully booked on %s: %s\n", res.Request.Carpark, res.Request.DateLabel, res.Reason)
			default:
				fmt.Fprintf(out, "Booked %s on %s\n", res.Request.Carpark, res.Request.DateLabel)
				if res.Bay.Reason != booking.BaySkipped {
					fmt.Fprintf(out, "Bay: %s (%s after %d checks)\n", res.Bay.Bay.Label, res.Bay.Reason, res.Bay.Iterations)
				}
				fmt.Fprintln(out, res.Report)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run even if database_url is set")
	c.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	return c
}
