package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BearBump/SpotBox/internal/geojson"
	"github.com/BearBump/SpotBox/internal/importer/gpx"
	"github.com/BearBump/SpotBox/internal/models"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export [asset]",
	Aliases: []string{"e"},
	Short:   "Export stored positions as GeoJSON or GPX",
	Long: `Export stored positions as GeoJSON (points or one line per tracker) or GPX.

Examples:
  spot-collector export --since 24h
  spot-collector export drifter-1 --since 7d --geometry line
  spot-collector export --since 2024-01-01 --output positions.geojson
  spot-collector export --format gpx --since 2w --output tracks.gpx`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "geojson" && format != "gpx" {
			return errors.Errorf("unsupported format: %s (use 'geojson' or 'gpx')", format)
		}
		geometry, _ := cmd.Flags().GetString("geometry")
		kind, err := geojson.ParseGeometry(geometry)
		if err != nil {
			return err
		}
		sinceStr, _ := cmd.Flags().GetString("since")
		since, err := models.ParseSince(sinceStr, time.Now().UTC())
		if err != nil {
			return err
		}
		asset := ""
		if len(args) == 1 {
			asset = args[0]
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var data []byte
		switch format {
		case "gpx":
			ps, err := a.positions.Since(cmd.Context(), since, asset)
			if err != nil {
				return err
			}
			if data, err = gpx.Encode(ps, "spotbox"); err != nil {
				return err
			}
		default:
			fc, err := a.positions.GeoJSON(cmd.Context(), since, asset, kind)
			if err != nil {
				return err
			}
			if data, err = fc.ToJSONIndent(); err != nil {
				return errors.Wrap(err, "encode geojson")
			}
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return errors.Wrap(err, "write export")
		}
		color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "✓ Exported to %s\n", output)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "geojson", "output format: geojson or gpx")
	exportCmd.Flags().StringP("geometry", "g", "points", "GeoJSON geometry: points or line")
	exportCmd.Flags().StringP("since", "s", "7d", "relative (24h, 7d, 2w, 1m) or absolute (2024-01-15) start")
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
