package logparse

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

const maxLineBytes = 1 << 20

// ReadLines calls fn for every line of r that is not blank, with the
// 1-based line number. Trailing CR/LF is removed; other whitespace is kept.
// Reading stops at the first error from fn.
func ReadLines(r io.Reader, fn func(n int, line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	n := 0
	for scanner.Scan() {
		n++
		raw := scanner.Bytes()
		if !utf8.Valid(raw) {
			return &InputError{Msg: fmt.Sprintf("line %d: input must be UTF-8", n)}
		}
		line := strings.TrimRight(string(raw), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return &InputError{Msg: "cannot read input", Err: err}
	}
	return nil
}

// ReadFile is ReadLines over the file at path.
func ReadFile(path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &InputError{Msg: fmt.Sprintf("cannot read: %s", path), Err: err}
	}
	defer f.Close()
	return ReadLines(f, fn)
}
