package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the collector and the HTTP API",
	Long: `Run collection cycles on a fixed interval until interrupted. The first
cycle runs immediately. With cleanup days set, old positions are swept
once a day at the cleanup hour.

Examples:
  spot-collector start
  spot-collector start --interval 15 --cleanup-days 30
  spot-collector start --http-addr 127.0.0.1:9000
  spot-collector start --no-http`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("interval") {
			interval, _ := cmd.Flags().GetInt("interval")
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			cfg.Collector.IntervalMinutes = interval
		}
		if cmd.Flags().Changed("cleanup-days") {
			days, _ := cmd.Flags().GetInt("cleanup-days")
			if days < 0 {
				return errors.New("--cleanup-days cannot be negative")
			}
			cfg.Collector.CleanupDays = days
		}

		opts := runOptions{httpAddr: cfg.HTTP.Addr}
		if addr, _ := cmd.Flags().GetString("http-addr"); addr != "" {
			opts.httpAddr = addr
		}
		if noHTTP, _ := cmd.Flags().GetBool("no-http"); noHTTP {
			opts.httpAddr = ""
		}
		opts.onListen = func(addr string) {
			color.Cyan("HTTP API listening on %s", addr)
		}

		color.Green("✓ Collector starting (every %d min, fetch %d)", cfg.Collector.IntervalMinutes, cfg.Collector.FetchCount)
		err := RunCollector(cmd.Context(), cfg, factories, opts)
		if errors.Is(err, context.Canceled) {
			color.Yellow("Collector stopped")
			return nil
		}
		return err
	},
}

func init() {
	startCmd.Flags().Int("interval", 0, "collection interval in minutes (default from config)")
	startCmd.Flags().Int("cleanup-days", 0, "days of positions to keep, 0 keeps everything (default from config)")
	startCmd.Flags().String("http-addr", "", "HTTP API listen address (default from config)")
	startCmd.Flags().Bool("no-http", false, "do not serve the HTTP API")
	rootCmd.AddCommand(startCmd)
}
