package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waflite/waflite/internal/logging"
	"github.com/waflite/waflite/internal/logparse"
	"github.com/waflite/waflite/internal/logtail"
	"github.com/waflite/waflite/internal/pipeline"
	"github.com/waflite/waflite/internal/report"
	"github.com/waflite/waflite/internal/ruleset"
)

type scanOptions struct {
	inputPath string
	format    string
	outPath   string
	outFormat string
	rulesPath string
	follow    bool
	fromStart bool
	logLevel  string
}

func newScanCmd() *cobra.Command {
	opts := scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Score every line of an access log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.inputPath == "" {
				return errors.New("--in is required")
			}
			if opts.outPath == "" {
				return errors.New("--out is required")
			}
			if opts.follow {
				return runFollow(cmd, opts)
			}
			return runScan(opts)
		},
	}

	cmd.Flags().StringVar(&opts.inputPath, "in", "", "Input log file")
	cmd.Flags().StringVar(&opts.format, "fmt", logparse.FormatNginx, "Input format: nginx|raw")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "Output file")
	cmd.Flags().StringVar(&opts.outFormat, "ofmt", report.FormatJSONL, "Output format: jsonl|csv")
	cmd.Flags().StringVar(&opts.rulesPath, "cfg", "", "Rule config JSON (default built-in rules)")
	cmd.Flags().BoolVar(&opts.follow, "follow", false, "Keep reading lines appended to the input")
	cmd.Flags().BoolVar(&opts.fromStart, "from-start", false, "With --follow, scan existing lines first")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level for --follow")

	return cmd
}

func newScanner(opts scanOptions) (*pipeline.Scanner, error) {
	doc, err := ruleset.LoadConfig(opts.rulesPath)
	if err != nil {
		return nil, err
	}
	set, err := ruleset.BuildRules(doc)
	if err != nil {
		return nil, err
	}
	return pipeline.New(opts.format, set)
}

// runScan reads the whole input before writing, so a bad line leaves no
// output file behind.
func runScan(opts scanOptions) error {
	scanner, err := newScanner(opts)
	if err != nil {
		return err
	}
	if _, err := report.NewWriter(opts.outFormat, io.Discard); err != nil {
		return err
	}

	rows, err := scanner.ScanFile(opts.inputPath)
	if err != nil {
		return err
	}

	w, err := report.Open(opts.outPath, opts.outFormat)
	if err != nil {
		return err
	}
	return report.WriteAll(w, rows)
}

func runFollow(cmd *cobra.Command, opts scanOptions) error {
	logger, err := logging.New(opts.logLevel, "text", cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	scanner, err := newScanner(opts)
	if err != nil {
		return err
	}

	w, err := report.Open(opts.outPath, opts.outFormat)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tailer := logtail.New(opts.inputPath, logger)
	tailer.FromStart = opts.fromStart

	logger.WithField("path", opts.inputPath).Info("following log")
	if err := scanner.Follow(ctx, tailer, w, logger); err != nil {
		return fmt.Errorf("follow %s: %w", opts.inputPath, err)
	}
	return nil
}
