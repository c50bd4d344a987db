// Package pipeline scans access logs line by line: parse, normalize,
// score, decide.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/waflite/waflite/internal/logparse"
	"github.com/waflite/waflite/internal/logtail"
	"github.com/waflite/waflite/internal/normalize"
	"github.com/waflite/waflite/internal/policy"
	"github.com/waflite/waflite/internal/report"
	"github.com/waflite/waflite/internal/ruleset"
)

// Scanner evaluates log lines against a fixed rule set.
type Scanner struct {
	Parser logparse.Parser
	Set    *ruleset.RuleSet
}

func New(format string, set *ruleset.RuleSet) (*Scanner, error) {
	parser, err := logparse.New(format)
	if err != nil {
		return nil, err
	}
	return &Scanner{Parser: parser, Set: set}, nil
}

// ScanLine parses and evaluates a single line.
func (s *Scanner) ScanLine(line string) (report.Row, error) {
	parsed, err := s.Parser.Parse(line)
	if err != nil {
		return report.Row{}, err
	}
	rec := normalize.Fields(parsed.Map())

	verdict, err := policy.EvaluateRecord(s.Set, rec)
	if err != nil {
		return report.Row{}, err
	}
	return report.NewRow(rec, verdict), nil
}

// ScanReader scans every non-blank line of r. The first error aborts the
// scan and no rows are returned.
func (s *Scanner) ScanReader(r io.Reader) ([]report.Row, error) {
	return s.scan(func(fn func(int, string) error) error {
		return logparse.ReadLines(r, fn)
	})
}

// ScanFile is ScanReader over the file at path.
func (s *Scanner) ScanFile(path string) ([]report.Row, error) {
	return s.scan(func(fn func(int, string) error) error {
		return logparse.ReadFile(path, fn)
	})
}

func (s *Scanner) scan(read func(fn func(int, string) error) error) ([]report.Row, error) {
	var rows []report.Row
	err := read(func(n int, line string) error {
		row, err := s.ScanLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Follow reads lines from tailer and writes a row for every new line until ctx is done.
// Lines that do not parse are logged and skipped; a rule set error stops
// the scan.
func (s *Scanner) Follow(ctx context.Context, tailer *logtail.Tailer, w report.Writer, logger logrus.FieldLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string, 64)
	tailErr := make(chan error, 1)
	go func() {
		tailErr <- tailer.Tail(ctx, lines)
		close(lines)
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return ignoreCanceled(<-tailErr)
			}
			if line == "" {
				continue
			}
			row, err := s.ScanLine(line)
			if err != nil {
				var inErr *logparse.InputError
				if errors.As(err, &inErr) {
					logger.Warnf("skipping line: %v", err)
					continue
				}
				return err
			}
			if err := w.Write(row); err != nil {
				return err
			}
			if row.Decision == string(policy.ActionBlock) {
				logger.WithFields(logrus.Fields{"ip": row.IP, "score": row.Score, "matched": row.Matched}).Info("blocked request")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
