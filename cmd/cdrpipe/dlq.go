package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tollgrid/cdrpipe/internal/pipeline"
	"github.com/tollgrid/cdrpipe/internal/recovery"
	"github.com/tollgrid/cdrpipe/internal/types"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered records",
	Long: `Records that exhaust recovery during a job are parked in the
dead-letter queue instead of aborting the job. Use these commands to list
parked records, view per-day failure analytics, and replay records after
fixing the underlying problem (for example by saving a better mapping
template).`,
}

var (
	dlqListJob   string
	dlqListLimit int
)

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered records",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		entries, err := store.List(ctx, dlqListJob, dlqListLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list dead letters: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Dead Letters ==="))
		if len(entries) == 0 {
			fmt.Printf("  %s\n\n", gray("Queue is empty"))
			return
		}

		for _, entry := range entries {
			fmt.Printf("  %s %s\n", red("✗"), entry.ID)
			fmt.Printf("    Job:      %s\n", entry.JobID)
			fmt.Printf("    Item:     %s\n", entry.ItemID)
			fmt.Printf("    Error:    [%s/%s] %s\n",
				entry.Error.Category, entry.Error.Severity, entry.Error.Message)
			fmt.Printf("    Retries:  %d\n", entry.RetryCount)
			fmt.Printf("    Parked:   %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Println()
		}
		fmt.Printf("%d parked record(s)\n\n", len(entries))
	},
}

var dlqStatsJob string

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-day dead-letter analytics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		queue := recovery.NewDeadLetterQueue(store, logger)
		stats, err := queue.Stats(ctx, dlqStatsJob)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to compute stats: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Dead Letter Stats ==="))
		if len(stats) == 0 {
			fmt.Printf("  %s\n\n", gray("Queue is empty"))
			return
		}

		for _, day := range stats {
			fmt.Printf("%s %d total\n", yellow(day.Day+":"), day.Total)
			for _, cat := range sortedKeys(day.ByCategory) {
				fmt.Printf("    %-18s %d\n", string(cat), day.ByCategory[cat])
			}
			for _, sev := range sortedKeys(day.BySeverity) {
				fmt.Printf("    %s %d\n", gray(fmt.Sprintf("%-18s", "severity/"+string(sev))), day.BySeverity[sev])
			}
			fmt.Println()
		}
	},
}

var (
	redrainJob     string
	redrainCarrier string
	redrainFormat  string
	redrainRegion  string
	redrainLimit   int
)

var dlqRedrainCmd = &cobra.Command{
	Use:   "redrain",
	Short: "Replay dead-lettered records through normalization",
	Long: `Replay parked records for a job using a stored mapping template.
Records that normalize successfully are written to the events table and
removed from the queue; records that fail again stay parked.

Example:
  cdrpipe dlq redrain --job 4f1f... --carrier verizon --format csv`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		status, err := store.GetJobStatus(ctx, redrainJob)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to look up job %s: %v\n", redrainJob, err)
			os.Exit(1)
		}
		if status == nil {
			fmt.Fprintf(os.Stderr, "Error: unknown job %s\n", redrainJob)
			os.Exit(1)
		}

		tpl, err := store.Lookup(ctx, redrainCarrier, redrainFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: template lookup failed: %v\n", err)
			os.Exit(1)
		}
		if tpl == nil {
			fmt.Fprintf(os.Stderr, "Error: no mapping template for carrier=%s format=%s\n",
				redrainCarrier, redrainFormat)
			os.Exit(1)
		}

		byTarget := make(map[types.TargetField]*types.FieldMapping, len(tpl.Mappings))
		for i := range tpl.Mappings {
			m := &tpl.Mappings[i]
			byTarget[m.TargetField] = m
		}

		normalizer := pipeline.NewRecordNormalizer(redrainRegion)
		queue := recovery.NewDeadLetterQueue(store, logger)

		drained, failed, err := queue.Redrain(ctx, redrainJob, redrainLimit,
			func(ctx context.Context, entry *recovery.DeadLetter) error {
				rec := itemToRecord(entry.Item)
				ev, _, ve := normalizer.Normalize(rec, byTarget, status.UserID, entry.ItemID)
				if ve != nil {
					return ve
				}
				if _, err := store.UpsertEvents(ctx, []*types.CanonicalEvent{ev}); err != nil {
					return err
				}
				return nil
			})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: redrain aborted: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s %d record(s) redrained\n", green("✓"), drained)
		if failed > 0 {
			fmt.Printf("%s %d record(s) failed again and stay parked\n", yellow("⚠"), failed)
		}
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqStatsCmd)
	dlqCmd.AddCommand(dlqRedrainCmd)

	dlqListCmd.Flags().StringVar(&dlqListJob, "job", "", "filter by job ID")
	dlqListCmd.Flags().IntVar(&dlqListLimit, "limit", 50, "maximum entries to show")

	dlqStatsCmd.Flags().StringVar(&dlqStatsJob, "job", "", "filter by job ID")

	dlqRedrainCmd.Flags().StringVar(&redrainJob, "job", "", "job ID to redrain (required)")
	dlqRedrainCmd.Flags().StringVar(&redrainCarrier, "carrier", "", "carrier of the stored template (required)")
	dlqRedrainCmd.Flags().StringVar(&redrainFormat, "format", "csv", "format type of the stored template")
	dlqRedrainCmd.Flags().StringVar(&redrainRegion, "region", "US", "default phone region")
	dlqRedrainCmd.Flags().IntVar(&redrainLimit, "limit", 100, "maximum records to replay")
	_ = dlqRedrainCmd.MarkFlagRequired("job")
	_ = dlqRedrainCmd.MarkFlagRequired("carrier")
}

// itemToRecord rebuilds a raw record from its dead-lettered JSON form.
// Fields are sorted so replays are deterministic.
func itemToRecord(item map[string]any) *types.RawRecord {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rec := types.NewRawRecord(len(keys))
	for _, k := range keys {
		rec.Set(k, item[k])
	}
	return rec
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
