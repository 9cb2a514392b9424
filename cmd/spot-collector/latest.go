package main

import (
	"fmt"
	"io"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var latestCmd = &cobra.Command{
	Use:     "latest [asset]",
	Aliases: []string{"current"},
	Short:   "Show the newest stored position",
	Long: `Show the newest stored position of a tracker, or of any tracker when no
asset is given.

With --upstream the feed is asked directly and nothing is stored.

Examples:
  spot-collector latest
  spot-collector latest drifter-1
  spot-collector latest --upstream --password secret`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset := ""
		if len(args) == 1 {
			asset = args[0]
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if upstream, _ := cmd.Flags().GetBool("upstream"); upstream {
			password, _ := cmd.Flags().GetString("password")
			p, err := a.feed.GetLatestPosition(cmd.Context(), password)
			if err != nil {
				return err
			}
			if p == nil {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "Feed has no messages")
				return nil
			}
			printPosition(cmd.OutOrStdout(), *p)
			return nil
		}

		p, err := a.positions.Latest(cmd.Context(), asset)
		if errors.Is(err, storage.ErrNotFound) {
			color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "No positions stored yet")
			return nil
		}
		if err != nil {
			return err
		}
		printPosition(cmd.OutOrStdout(), *p)
		return nil
	},
}

func printPosition(w io.Writer, p models.Position) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, p.AssetID)
	fmt.Fprintf(w, "  %.5f, %.5f", p.Latitude, p.Longitude)
	if p.Altitude != nil {
		fmt.Fprintf(w, "  alt %.1f m", *p.Altitude)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", p.Timestamp.UTC().Format(time.RFC3339),
		color.New(color.Faint).Sprintf("(%s ago)", time.Since(p.Timestamp).Round(time.Minute)))
	if p.MessageType != nil {
		fmt.Fprintf(w, "  type: %s\n", *p.MessageType)
	}
	if p.BatteryState != nil {
		fmt.Fprintf(w, "  battery: %s\n", *p.BatteryState)
	}
}

func init() {
	latestCmd.Flags().Bool("upstream", false, "ask the SPOT feed instead of the store")
	latestCmd.Flags().String("password", "", "feed password for --upstream (default from config)")
	rootCmd.AddCommand(latestCmd)
}
