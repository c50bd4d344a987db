package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// Writer receives scan rows.
type Writer interface {
	Write(row Row) error
	Close() error
}

type jsonlWriter struct {
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLWriter writes one JSON object per row. Non-ASCII and HTML
// characters are written as is.
func NewJSONLWriter(w io.Writer) Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &jsonlWriter{enc: enc, closer: closerOf(w)}
}

func (w *jsonlWriter) Write(row Row) error {
	return w.enc.Encode(row)
}

func (w *jsonlWriter) Close() error {
	return w.closer.Close()
}

type csvWriter struct {
	w      *csv.Writer
	closer io.Closer
	header bool
}

// NewCSVWriter writes a header before the first row. Nothing is written
// when there are no rows.
func NewCSVWriter(w io.Writer) Writer {
	return &csvWriter{w: csv.NewWriter(w), closer: closerOf(w)}
}

func (w *csvWriter) Write(row Row) error {
	if !w.header {
		if err := w.w.Write(csvHeader); err != nil {
			return err
		}
		w.header = true
	}
	if err := w.w.Write(row.csvRecord()); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *csvWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		_ = w.closer.Close()
		return err
	}
	return w.closer.Close()
}

// NewWriter returns a writer for format over w.
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatCSV:
		return NewCSVWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// Open creates path, and its parent directories, and returns a writer for
// format. Closing the writer closes the file.
func Open(path, format string) (Writer, error) {
	if _, err := NewWriter(format, io.Discard); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot write: %s: %w", path, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot write: %s: %w", path, err)
	}
	return NewWriter(format, file)
}

// WriteAll writes rows to w and closes it.
func WriteAll(w Writer, rows []Row) error {
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func closerOf(w io.Writer) io.Closer {
	if c, ok := w.(io.Closer); ok {
		return c
	}
	return nopCloser{}
}
