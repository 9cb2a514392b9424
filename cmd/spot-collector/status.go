package main

import (
	"fmt"
	"io"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if asset, _ := cmd.Flags().GetString("asset"); asset != "" {
			n, err := a.positions.Count(cmd.Context(), asset)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d positions\n", asset, n)
			return nil
		}

		stats, err := a.positions.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func printStats(w io.Writer, s models.DatabaseStats) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	bold.Fprintln(w, "Database Statistics:")
	fmt.Fprintf(w, "  Total positions:   %d\n", s.TotalPositions)
	fmt.Fprintf(w, "  Unique assets:     %d\n", s.UniqueAssets)
	fmt.Fprintf(w, "  Earliest position: %s\n", formatTime(s.EarliestPosition))
	fmt.Fprintf(w, "  Latest position:   %s\n", formatTime(s.LatestPosition))
	fmt.Fprintf(w, "  Size:              %d bytes\n", s.DatabaseSizeBytes)

	if len(s.Assets) == 0 {
		return
	}
	fmt.Fprintln(w)
	bold.Fprintln(w, "Asset Breakdown:")
	for _, as := range s.Assets {
		fmt.Fprintf(w, "  %s: %d positions %s\n", as.AssetID, as.Count,
			faint.Sprintf("(first: %s, last: %s)", formatTime(&as.FirstSeen), formatTime(&as.LastSeen)))
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func init() {
	statusCmd.Flags().String("asset", "", "only count the positions of this asset")
	rootCmd.AddCommand(statusCmd)
}
