package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/waflite/waflite/internal/config"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestScanWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "access.log",
		`1.2.3.4 - - [10/Oct/2000:13:55:36 -0700] "GET /?id=1' UNION SELECT 1 HTTP/1.1" 200 10 "-" "sqlmap/1.7"`+"\n"+
			`5.6.7.8 - - [10/Oct/2000:13:55:37 -0700] "GET / HTTP/1.1" 200 10 "-" "Mozilla/5.0"`+"\n")
	out := filepath.Join(dir, "out", "scan.jsonl")

	if _, err := runCmd(t, "scan", "--in", in, "--out", out); err != nil {
		t.Fatalf("scan error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 rows, got %d: %s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"dec":"block"`) || !strings.Contains(lines[1], `"dec":"allow"`) {
		t.Fatalf("unexpected rows %s", data)
	}
}

func TestScanBadLineLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "access.log", "GET / HTTP/1.1\n")
	out := filepath.Join(dir, "scan.csv")

	_, err := runCmd(t, "scan", "--in", in, "--out", out, "--ofmt", "csv")
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line 1 error, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, got %v", statErr)
	}
}

func TestScanRequiresFlags(t *testing.T) {
	if _, err := runCmd(t, "scan", "--out", "x.jsonl"); err == nil {
		t.Fatal("expected error without --in")
	}
	if _, err := runCmd(t, "scan", "--in", "x.log", "--out", "x.jsonl", "--fmt", "apache"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestValidateRules(t *testing.T) {
	dir := t.TempDir()
	good := writeInput(t, dir, "good.json", `{"rls": [{"rid": "a", "rtp": "substring", "w": 1, "ps": ["x"]}]}`)
	bad := writeInput(t, dir, "bad.json", `{"rls": [{"rid": "a", "rtp": "glob", "w": 1, "ps": ["x"]}]}`)

	out, err := runCmd(t, "validate", "--rules", good)
	if err != nil || !strings.Contains(out, "rules ok (1 rules)") {
		t.Fatalf("unexpected result %q %v", out, err)
	}
	if _, err := runCmd(t, "validate", "--rules", bad); err == nil {
		t.Fatal("expected unsupported rule type to fail validation")
	}
}

func TestValidateConfigPrintsProblems(t *testing.T) {
	dir := t.TempDir()
	path := writeInput(t, dir, "waflite.yaml", "configVersion: 2\nlogging:\n  level: loud\n")

	_, err := runCmd(t, "validate", "-c", path)
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	var buf bytes.Buffer
	printError(&buf, err)
	if got := strings.Count(buf.String(), "\n"); got != len(verr.Problems) {
		t.Fatalf("expected one line per problem, got %q", buf.String())
	}
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "scan.jsonl",
		`{"ip":"1.1.1.1","req":"GET /","ua":"","st":200,"scr":0,"dec":"allow","m":""}`+"\n"+
			`{"ip":"2.2.2.2","req":"GET /../","ua":"","st":200,"scr":9,"dec":"block","m":"trav_1,xss_1"}`+"\n")
	out := filepath.Join(dir, "summary.json")

	if _, err := runCmd(t, "report", "--in", in, "--format", "json", "--out", out); err != nil {
		t.Fatalf("report error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(data), `"blocked": 1`) || !strings.Contains(string(data), "trav_1") {
		t.Fatalf("unexpected summary %s", data)
	}
}
