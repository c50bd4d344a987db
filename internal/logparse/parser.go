// Package logparse turns access log lines into normalized request records.
package logparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/waflite/waflite/internal/normalize"
)

const (
	FormatRaw   = "raw"
	FormatNginx = "nginx"
)

// InputError reports input that cannot be read or parsed: a line matching
// neither grammar, an unknown format name, or text that is not UTF-8.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Parser parses one log line.
type Parser interface {
	Parse(line string) (normalize.Record, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(line string) (normalize.Record, error)

func (f ParserFunc) Parse(line string) (normalize.Record, error) {
	return f(line)
}

// New returns the parser for a format name. Names are trimmed and compared
// case-insensitively.
func New(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatNginx:
		return ParserFunc(ParseNginx), nil
	case FormatRaw:
		return ParserFunc(ParseRaw), nil
	default:
		return nil, &InputError{Msg: fmt.Sprintf("bad fmt: %q", format)}
	}
}

// Parse parses line with the named format.
func Parse(format, line string) (normalize.Record, error) {
	p, err := New(format)
	if err != nil {
		return normalize.Record{}, err
	}
	return p.Parse(line)
}

// ParseRaw accepts "REQ" or "IP<TAB>REQ<TAB>UA[<TAB>...]". Two fields is an
// error.
func ParseRaw(line string) (normalize.Record, error) {
	parts := strings.Split(line, "\t")
	switch {
	case len(parts) == 1:
		return normalize.Record{Req: strings.TrimSpace(parts[0])}, nil
	case len(parts) >= 3:
		return normalize.Record{
			IP:  strings.TrimSpace(parts[0]),
			Req: strings.TrimSpace(parts[1]),
			UA:  strings.TrimSpace(parts[2]),
		}, nil
	default:
		return normalize.Record{}, &InputError{Msg: "bad raw line"}
	}
}

// Example combined log line:
// 203.0.113.9 - - [10/Oct/2000:13:55:36 -0700] "GET /index.html HTTP/1.1" 200 2326 "-" "curl/8.0"
var nginxCombinedRe = regexp.MustCompile(`^(?P<ip>\S+)\s+\S+\s+\S+\s+\[[^\]]+\]\s+"(?P<req>[^"]+)"\s+(?P<st>\d{3})\s+\S+\s+"[^"]*"\s+"(?P<ua>[^"]*)"$`)

var (
	nginxIP  = nginxCombinedRe.SubexpIndex("ip")
	nginxReq = nginxCombinedRe.SubexpIndex("req")
	nginxSt  = nginxCombinedRe.SubexpIndex("st")
	nginxUA  = nginxCombinedRe.SubexpIndex("ua")
)

// ParseNginx parses an nginx combined log line. The timestamp is required
// but not interpreted.
func ParseNginx(line string) (normalize.Record, error) {
	m := nginxCombinedRe.FindStringSubmatch(line)
	if m == nil {
		return normalize.Record{}, &InputError{Msg: "bad nginx line"}
	}
	status, err := strconv.Atoi(m[nginxSt])
	if err != nil {
		return normalize.Record{}, &InputError{Msg: "bad nginx status", Err: err}
	}
	return normalize.Record{
		IP:     m[nginxIP],
		Req:    m[nginxReq],
		UA:     m[nginxUA],
		Status: status,
	}, nil
}
