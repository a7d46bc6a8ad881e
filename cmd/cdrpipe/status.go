package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tollgrid/cdrpipe/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the progress of a validation job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		jobID := args[0]

		status, err := store.GetJobStatus(ctx, jobID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get job status: %v\n", err)
			os.Exit(1)
		}
		if status == nil {
			fmt.Fprintf(os.Stderr, "Error: unknown job %s\n", jobID)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		stage := yellow(string(status.Stage))
		icon := yellow("●")
		switch status.Stage {
		case types.StageCompleted:
			stage = green(string(status.Stage))
			icon = green("✓")
		case types.StageFailed:
			stage = red(string(status.Stage))
			icon = red("✗")
		}

		fmt.Printf("\n%s\n\n", cyan("=== Job Status ==="))
		fmt.Printf("  %s %s\n", icon, stage)
		fmt.Printf("  Job:      %s\n", status.JobID)
		fmt.Printf("  User:     %s\n", status.UserID)
		fmt.Printf("  Progress: %.0f%%\n", status.Progress*100)
		if status.TotalRows > 0 {
			fmt.Printf("  Rows:     %d / %d\n", status.ProcessedRows, status.TotalRows)
		}
		if status.Message != "" {
			fmt.Printf("  Message:  %s\n", status.Message)
		}
		fmt.Printf("  Updated:  %s\n\n", status.UpdatedAt.Format("2006-01-02 15:04:05"))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
