package main

import (
	"os"

	"github.com/BearBump/SpotBox/config"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Write a sample configuration file",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			_, err := cmd.OutOrStdout().Write(config.Sample())
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(output); err == nil && !force {
			return errors.Errorf("%s already exists (use --force to overwrite)", output)
		}
		if err := os.WriteFile(output, config.Sample(), 0o600); err != nil {
			return errors.Wrap(err, "write config")
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", output)
		return nil
	},
}

func init() {
	configCmd.Flags().StringP("output", "o", "", "file to write instead of stdout")
	configCmd.Flags().Bool("force", false, "overwrite an existing file")
	rootCmd.AddCommand(configCmd)
}
