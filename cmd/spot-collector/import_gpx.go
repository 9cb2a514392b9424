package main

import (
	"fmt"

	"github.com/BearBump/SpotBox/internal/importer/gpx"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var importGPXCmd = &cobra.Command{
	Use:   "import-gpx <file>",
	Short: "Import track points from a GPX file",
	Long: `Import the track points of a GPX file as positions. Each track becomes an
asset named after the track, or after the file when the track has no name.
Points already stored are skipped.

Examples:
  spot-collector import-gpx deployment-2024-01.gpx
  spot-collector import-gpx recovered.gpx --asset drifter-3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := gpx.ParseFile(args[0])
		if err != nil {
			return err
		}
		if asset, _ := cmd.Flags().GetString("asset"); asset != "" {
			for i := range res.Positions {
				res.Positions[i].AssetID = asset
			}
		}
		if len(res.Positions) == 0 {
			return errors.Errorf("no timestamped track points in %s", args[0])
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ins, err := a.positions.ImportPositions(cmd.Context(), res.Positions)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintf(out, "✓ Imported %d positions from %s\n", ins.Inserted, args[0])
		fmt.Fprintf(out, "  %d duplicates, %d points skipped\n", ins.Duplicates, res.Skipped)
		for _, t := range res.Tracks {
			fmt.Fprintf(out, "  %s: %d points\n", t.AssetID, t.Points)
		}
		return nil
	},
}

func init() {
	importGPXCmd.Flags().String("asset", "", "store every point under this asset id")
	rootCmd.AddCommand(importGPXCmd)
}
