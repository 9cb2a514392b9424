package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete positions older than --days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days < 0 {
			return errors.New("--days cannot be negative")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.collector.Cleanup(cmd.Context(), days)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintf(out, "✓ Cleaned up %d old positions", res.Deleted)
		fmt.Fprintf(out, " (older than %d days)\n", days)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int("days", 30, "keep positions from the last N days")
	rootCmd.AddCommand(cleanupCmd)
}
