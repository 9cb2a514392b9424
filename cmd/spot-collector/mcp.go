package main

import (
	"github.com/BearBump/SpotBox/internal/api/mcpserver"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the collector as MCP tools over stdio",
	Long: `Start an MCP server on stdin/stdout for AI agents. Tools: get_status,
get_database_stats, get_latest_position, get_positions_since, run_once.
Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		server, err := mcpserver.New(a.collector, a.positions, version)
		if err != nil {
			return err
		}
		return server.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
