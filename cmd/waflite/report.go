package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/waflite/waflite/internal/report"
)

func newReportCmd() *cobra.Command {
	var inputPath string
	var decision string
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize scan output",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return errors.New("--in is required")
			}

			reader := report.Reader{Decision: decision}
			rows, err := reader.Read(inputPath)
			if err != nil {
				return err
			}

			data, err := report.Render(report.Summarize(rows), format)
			if err != nil {
				return err
			}
			return report.WriteOutput(outPath, data)
		},
	}

	cmd.Flags().StringVar(&inputPath, "in", "", "Scan output JSONL")
	cmd.Flags().StringVar(&decision, "decision", "", "Only include rows with this decision (allow|block)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|md|json")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file path (default stdout)")

	return cmd
}
