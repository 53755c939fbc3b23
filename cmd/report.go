package cmd

import (
	"fmt"

	"github.com/lehigh-university-libraries/docprep/internal/batch"
	"github.com/lehigh-university-libraries/docprep/internal/report"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "report <file>",
		Short: "Summarize a saved batch report",
		Long: `Reads a batch report written by docprep convert --report and prints
its per-file outcomes. Both YAML and Parquet reports are supported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.Load(args[0])
			if err != nil {
				return err
			}

			if r.Config.Backend != "" {
				fmt.Printf("Backend: %s  Format: %s  Concurrency: %d  Run: %s\n",
					r.Config.Backend, r.Config.OutputFormat, r.Config.Concurrency, r.Config.Timestamp)
			}
			fmt.Println(r.Summarize().Summary())

			for _, rec := range r.Records {
				if failedOnly && batch.Status(rec.Status) == batch.StatusCompleted {
					continue
				}
				line := fmt.Sprintf("  %-10s %s (%dms)", rec.Status, rec.Filename, rec.DurationMS)
				if rec.Error != "" {
					line += ": " + rec.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show files that did not complete")

	return cmd
}
