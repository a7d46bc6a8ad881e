package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tollgrid/cdrpipe/internal/pipeline"
	"github.com/tollgrid/cdrpipe/internal/recovery"
	"github.com/tollgrid/cdrpipe/internal/resource"
	"github.com/tollgrid/cdrpipe/internal/storage"
	"github.com/tollgrid/cdrpipe/internal/types"
)

var (
	validateUser    string
	validateCarrier string
	validateConfig  string
	validateJSON    bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Run a CDR export file through the validation pipeline",
	Long: `Extract records from a CDR export file and run them through the full
pipeline: field mapping, normalization, duplicate detection, and database
integration. Canonical events and contact summaries are written to the
database; unrecoverable records are parked in the dead-letter queue.

Job configuration can be overridden with a YAML file, for example:

  batch_size: 500
  enable_dedup: false
  default_region: GB

Example:
  cdrpipe validate --user alice verizon_export.csv
  cdrpipe validate --user alice --config job.yaml --carrier tmobile calls.jsonl`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		path := args[0]

		var cfg types.JobConfig
		if validateConfig != "" {
			data, err := os.ReadFile(validateConfig)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read config: %v\n", err)
				os.Exit(1)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to parse config: %v\n", err)
				os.Exit(1)
			}
		}
		cfg.ApplyDefaults()

		records, meta, err := pipeline.NewFileExtractor().Extract(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to extract %s: %v\n", path, err)
			os.Exit(1)
		}
		if validateCarrier != "" {
			meta.CarrierHint = validateCarrier
		}

		sink := pipeline.NewStoreSink(store, logger)
		orch, err := pipeline.NewOrchestrator(pipeline.Deps{
			Classifier:  pipeline.NewHeuristicClassifier(),
			Status:      sink,
			Events:      sink,
			Templates:   store,
			DeadLetters: recovery.NewDeadLetterQueue(store, logger),
			Monitor:     resource.NewMemoryMonitor(cfg.MaxMemoryUsageMB, 0, 0, logger),
			Cache:       resource.NewCache(0, 0, 0, storage.CacheAdapter{Store: store}, logger),
			Logger:      logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		result := orch.Run(ctx, pipeline.Job{
			UserID:   validateUser,
			Records:  records,
			Metadata: meta,
			Config:   cfg,
		})

		if validateJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to encode result: %v\n", err)
				os.Exit(1)
			}
		} else {
			printResult(result)
		}

		if !result.Success {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateUser, "user", "u", "", "user ID to attribute events to (required)")
	validateCmd.Flags().StringVar(&validateCarrier, "carrier", "", "carrier hint (overrides filename detection)")
	validateCmd.Flags().StringVarP(&validateConfig, "config", "c", "", "path to a YAML job config file")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "emit the full result as JSON")
	_ = validateCmd.MarkFlagRequired("user")
}

func printResult(result *types.ValidationResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Validation Result ==="))
	fmt.Printf("  Job:     %s\n", result.JobID)
	if result.Success {
		fmt.Printf("  Status:  %s\n", green("✓ completed"))
	} else {
		fmt.Printf("  Status:  %s\n", red("✗ failed"))
	}
	fmt.Printf("  Quality: %.2f\n", result.QualityScore)
	fmt.Println()

	ns := result.NormalizationStats
	fmt.Printf("%s\n", yellow("Normalization:"))
	fmt.Printf("  Records:      %d\n", ns.TotalRecords)
	fmt.Printf("  Normalized:   %d\n", ns.Normalized)
	fmt.Printf("  Skipped:      %d\n", ns.Skipped)
	fmt.Printf("  Dead-letters: %d\n", ns.DeadLettered)
	if ns.PhoneFallbacks > 0 {
		fmt.Printf("  %s\n", gray(fmt.Sprintf("%d phone numbers used the digit-count fallback", ns.PhoneFallbacks)))
	}
	if ns.PIIRedactions > 0 {
		fmt.Printf("  %s\n", gray(fmt.Sprintf("%d PII redactions applied", ns.PIIRedactions)))
	}
	fmt.Println()

	ds := result.DuplicateStats
	fmt.Printf("%s\n", yellow("Duplicates:"))
	fmt.Printf("  Input events:  %d\n", ds.InputEvents)
	fmt.Printf("  Output events: %d\n", ds.OutputEvents)
	fmt.Printf("  Removed:       %d (exact %d, time %d, fuzzy %d, semantic %d)\n",
		ds.RemovedTotal(), ds.ExactDuplicates, ds.TimeBucketed, ds.FuzzyMatched, ds.SemanticMatched)
	fmt.Println()

	m := result.Metrics
	fmt.Printf("%s\n", yellow("Performance:"))
	fmt.Printf("  Mode:       %s\n", m.ExecutionMode)
	fmt.Printf("  Elapsed:    %v\n", m.ProcessingTime)
	fmt.Printf("  Throughput: %.0f records/sec\n", m.ThroughputPerSec)
	fmt.Printf("  Peak mem:   %.1f MB\n", m.PeakMemoryMB)

	if len(result.Warnings) > 0 {
		fmt.Println()
		fmt.Printf("%s\n", yellow("Warnings:"))
		for _, w := range result.Warnings {
			fmt.Printf("  %s %s\n", yellow("⚠"), w)
		}
	}

	if len(result.Errors) > 0 {
		fmt.Println()
		fmt.Printf("%s\n", red(fmt.Sprintf("Errors (%d):", len(result.Errors))))
		const maxShown = 10
		for i, e := range result.Errors {
			if i == maxShown {
				fmt.Printf("  %s\n", gray(fmt.Sprintf("... and %d more", len(result.Errors)-maxShown)))
				break
			}
			fmt.Printf("  %s %s\n", red("✗"), e.Error())
		}
	}
	fmt.Println()
}
