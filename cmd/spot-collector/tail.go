package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BearBump/SpotBox/internal/broker/kafka"
	"github.com/BearBump/SpotBox/internal/broker/messages"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow positions.collected events from Kafka",
	Long: `Print every collection cycle that stored new positions, as published by a
running collector. Without --group the newest offset is used and nothing is
committed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is not configured")
		}
		group, _ := cmd.Flags().GetString("group")

		c := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, group)
		defer c.Close()

		out := cmd.OutOrStdout()
		color.New(color.Faint).Fprintf(out, "Following %s on %s\n", cfg.Kafka.Topic, strings.Join(cfg.Kafka.Brokers, ","))

		err := c.ConsumeCollected(cmd.Context(), func(m messages.PositionsCollected) error {
			printCollected(out, m)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func printCollected(w io.Writer, m messages.PositionsCollected) {
	color.New(color.FgCyan).Fprintf(w, "%s ", m.CollectedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "+%d new (%d fetched, %d duplicates) %s\n",
		m.Inserted, m.Fetched, m.Duplicates, color.New(color.Faint).Sprint(m.CycleID))
	for _, p := range m.Latest {
		fmt.Fprintf(w, "  %-20s %.5f, %.5f  %s\n", p.AssetID, p.Latitude, p.Longitude, p.Timestamp.UTC().Format(time.RFC3339))
	}
}

func init() {
	tailCmd.Flags().String("group", "", "consumer group to join (commits offsets)")
	rootCmd.AddCommand(tailCmd)
}
