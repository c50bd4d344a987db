// Package ruleset loads, validates and stores the JSON rule set document:
// a threshold, a list of ignored user agent substrings and the rules.
package ruleset

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"unicode/utf8"

	"github.com/waflite/waflite/internal/rules"
)

const (
	KeyThreshold        = "thr"
	KeyIgnoreUserAgents = "ign_ua"
	KeyRules            = "rls"

	DefaultThreshold = 7
)

// Document is a decoded rule set before validation. Numbers are kept as
// json.Number.
type Document map[string]any

// RuleSet is a validated, compiled rule set.
type RuleSet struct {
	Threshold        int
	IgnoreUserAgents []string
	Rules            []rules.Rule
}

// DefaultDocument returns the built-in configuration.
func DefaultDocument() Document {
	return Document{
		KeyThreshold:        DefaultThreshold,
		KeyIgnoreUserAgents: []any{},
		KeyRules:            defaultRuleDocuments(),
	}
}

// LoadConfig reads a rule config file. An empty path selects the built-in
// configuration. Missing keys fall back to the defaults; rls must end up a
// non-empty list.
func LoadConfig(path string) (Document, error) {
	if path == "" {
		return DefaultDocument(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rules.NewConfigError(err, "cannot read config %s", path)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	doc.setDefault(KeyThreshold, DefaultThreshold)
	doc.setDefault(KeyIgnoreUserAgents, []any{})
	doc.setDefault(KeyRules, defaultRuleDocuments())

	list, ok := doc[KeyRules].([]any)
	if !ok || len(list) == 0 {
		return nil, rules.NewConfigError(nil, "config rls must be a non-empty list")
	}
	return doc, nil
}

// Decode parses a UTF-8 JSON object.
func Decode(data []byte) (Document, error) {
	if !utf8.Valid(data) {
		return nil, rules.NewConfigError(nil, "config must be UTF-8")
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, rules.NewConfigError(err, "config must be JSON")
	}
	if err := decoder.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, rules.NewConfigError(err, "config must hold a single JSON value")
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, rules.NewConfigError(nil, "config root must be an object")
	}
	return Document(obj), nil
}

// BuildRules validates a loaded document into a RuleSet. Any malformed
// rule fails the whole build and an empty rule list is rejected.
func BuildRules(doc Document) (*RuleSet, error) {
	return compile(doc, true)
}

func compile(doc Document, requireRules bool) (*RuleSet, error) {
	threshold := DefaultThreshold
	if raw, ok := doc[KeyThreshold]; ok {
		n, err := toInt(raw)
		if err != nil {
			return nil, rules.NewConfigError(err, "config thr must be an integer")
		}
		threshold = n
	}

	ignore, err := stringList(doc[KeyIgnoreUserAgents])
	if err != nil {
		return nil, rules.NewConfigError(err, "config ign_ua must be a list")
	}

	var items []any
	if raw, ok := doc[KeyRules]; ok && raw != nil {
		items, ok = raw.([]any)
		if !ok {
			return nil, rules.NewConfigError(nil, "config rls must be a list")
		}
	}

	compiled := make([]rules.Rule, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, rules.NewConfigError(nil, "config rls items must be objects (rls[%d])", i)
		}
		spec, err := specFromDocument(obj)
		if err != nil {
			return nil, rules.NewConfigError(err, "rls[%d]", i)
		}
		rule, err := spec.Build()
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, rule)
	}

	if requireRules && len(compiled) == 0 {
		return nil, rules.NewConfigError(nil, "no rules")
	}

	return &RuleSet{
		Threshold:        threshold,
		IgnoreUserAgents: ignore,
		Rules:            compiled,
	}, nil
}

func (d Document) setDefault(key string, value any) {
	if _, ok := d[key]; !ok {
		d[key] = value
	}
}

func defaultRuleDocuments() []any {
	specs := rules.DefaultSpecs()
	out := make([]any, len(specs))
	for i, spec := range specs {
		out[i] = spec.Document()
	}
	return out
}
