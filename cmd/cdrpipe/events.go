package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events <user-id>",
	Short: "Show canonical events stored for a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		userID := args[0]

		events, err := store.GetEventsByUser(ctx, userID, eventsLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get events: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Events for %s ===", userID)))
		if len(events) == 0 {
			fmt.Printf("  %s\n\n", gray("No events"))
			return
		}

		fmt.Printf("  %-20s %-16s %-10s %-10s %s\n", "TIMESTAMP", "NUMBER", "TYPE", "DIRECTION", "DURATION")
		for _, ev := range events {
			fmt.Printf("  %-20s %-16s %-10s %-10s %ds\n",
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				ev.Number, ev.Type, ev.Direction, ev.Duration)
		}
		fmt.Printf("\n%d event(s)\n\n", len(events))
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events to show")
}
