package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/baybook/internal/db"
	"github.com/example/baybook/internal/runs"
)

func newRunsCmd() *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "runs",
		Short: "List recent booking runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("database_url is required")
			}

			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			rs, err := runs.NewRepo(d).ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tTRIGGER\tTARGET\tSTATE\tBAY\tID")
			for _, r := range rs {
				bay := r.BayLabel
				if r.BayReason != "" {
					bay = fmt.Sprintf("%s (%s)", r.BayLabel, r.BayReason)
				}
				state := string(r.State)
				if r.Heuristic {
					state += "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04"), r.Trigger, r.TargetDate.Format("2006-01-02"), state, bay, r.ID)
			}
			return w.Flush()
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return c
}
