package main

import (
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the feed connection and the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.collector.TestSetup(cmd.Context()) {
			return errors.New("setup test failed")
		}
		color.Green("✓ Setup test passed!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
