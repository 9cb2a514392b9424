package main

import (
	"fmt"
	"time"

	"github.com/BearBump/SpotBox/internal/integrations/feed"
	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/services/collector"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single collection cycle",
	Long: `Run a single collection cycle. With --from the feed history of that
window is fetched instead of the newest messages; the window may span at most
7 days.

Examples:
  spot-collector collect
  spot-collector collect --from 3d
  spot-collector collect --from 2024-01-08 --to 2024-01-15`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		if fromStr == "" && toStr != "" {
			return errors.New("--to requires --from")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var res collector.CycleResult
		if fromStr == "" {
			res = a.collector.RunOnce(cmd.Context())
		} else {
			from, to, err := backfillRange(fromStr, toStr, time.Now().UTC())
			if err != nil {
				return err
			}
			res, err = a.collector.Backfill(cmd.Context(), from, to)
			if errors.Is(err, feed.ErrRangeTooLarge) {
				return errors.Errorf("--from %s --to %s spans more than 7 days", fromStr, toStr)
			}
			if err != nil {
				return err
			}
		}
		out := cmd.OutOrStdout()

		if res.Skipped {
			color.New(color.FgYellow).Fprintf(out, "Cycle skipped: %s\n", res.SkipReason)
			return nil
		}
		for _, e := range res.Errors {
			color.New(color.FgRed).Fprintf(out, "✗ %s: %s\n", e.Kind, e.Message)
		}
		if res.Failed() {
			return errors.New("collection cycle failed")
		}

		color.New(color.FgGreen).Fprintf(out, "✓ Collected %d positions\n", res.Fetched)
		fmt.Fprintf(out, "  %d new, %d duplicates, %s\n",
			res.Inserted, res.SkippedDuplicates, res.Duration().Round(time.Millisecond))
		fmt.Fprintf(out, "  %s\n", color.New(color.Faint).Sprint(res.ID))
		return nil
	},
}

func backfillRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	from, err := models.ParseSince(fromStr, now)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "--from")
	}
	to := now
	if toStr != "" {
		if to, err = models.ParseSince(toStr, now); err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, "--to")
		}
	}
	return from, to, nil
}

func init() {
	collectCmd.Flags().String("from", "", "backfill from this time (24h, 7d or 2024-01-15)")
	collectCmd.Flags().String("to", "", "end of the backfill window (default now)")
	rootCmd.AddCommand(collectCmd)
}
