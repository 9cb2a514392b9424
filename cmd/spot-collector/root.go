package main

import (
	"log/slog"
	"os"

	"github.com/BearBump/SpotBox/config"
	"github.com/spf13/cobra"
)

const skipConfigAnnotation = "skip-config"

var (
	cfgFile  string
	dbPath   string
	logLevel string

	cfg       *config.Config
	factories = defaultCollectorFactories()
)

var rootCmd = &cobra.Command{
	Use:   "spot-collector",
	Short: "SPOT satellite tracker position collector",
	Long: `Collects positions from a SPOT public feed into a local store.

Examples:
  spot-collector start                      # collect every 5 minutes, serve the HTTP API
  spot-collector test                       # check the feed and the store
  spot-collector collect                    # run one collection cycle
  spot-collector status                     # store statistics
  spot-collector cleanup --days 7           # drop positions older than 7 days
  spot-collector latest drifter-1           # newest position of a tracker
  spot-collector export --since 7d -o week.geojson
  spot-collector import-gpx deployment.gpx
  spot-collector config > spotbox.yaml      # sample configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfigAnnotation] != "" {
			return nil
		}
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Storage.Path = dbPath
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		cfg = loaded
		slog.SetDefault(newLogger(cfg.Logging, os.Stderr))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv(config.EnvConfigPath), "path to YAML config (env configPath)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "SQLite database file, overrides storage.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

// openApp builds the application for one-shot commands.
func openApp() (*app, error) {
	return newApp(cfg, factories)
}
