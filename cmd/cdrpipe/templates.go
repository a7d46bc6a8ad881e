package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List learned mapping templates",
	Long: `List the mapping templates the pipeline has learned from completed
jobs, ordered by usage. Templates map a carrier's export columns onto the
canonical schema and are tried before heuristic field mapping.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		templates, err := store.ListTemplates(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list templates: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Mapping Templates ==="))
		if len(templates) == 0 {
			fmt.Printf("  %s\n\n", gray("No templates learned yet"))
			return
		}

		fmt.Printf("  %-12s %-8s %-8s %-8s %-9s %s\n",
			"CARRIER", "FORMAT", "FIELDS", "USED", "SUCCESS", "UPDATED")
		for _, tpl := range templates {
			rate := fmt.Sprintf("%.0f%%", tpl.SuccessRate*100)
			if tpl.SuccessRate >= 0.7 {
				rate = green(rate)
			} else {
				rate = red(rate)
			}
			fmt.Printf("  %-12s %-8s %-8d %-8d %-18s %s\n",
				tpl.Carrier, tpl.FormatType, len(tpl.Mappings), tpl.UsageCount,
				rate, tpl.UpdatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}
