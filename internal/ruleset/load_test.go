package ruleset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/waflite/waflite/internal/rules"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func expectConfigError(t *testing.T, err error) {
	t.Helper()
	var cfgErr *rules.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadConfigDefault(t *testing.T) {
	doc, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	set, err := BuildRules(doc)
	if err != nil {
		t.Fatalf("BuildRules error: %v", err)
	}
	if set.Threshold < 1 {
		t.Fatalf("expected threshold >= 1, got %d", set.Threshold)
	}
	if set.Threshold != 7 {
		t.Fatalf("expected default threshold 7, got %d", set.Threshold)
	}
	if len(set.Rules) != 6 {
		t.Fatalf("expected 6 default rules, got %d", len(set.Rules))
	}
	if len(set.IgnoreUserAgents) != 0 {
		t.Fatalf("expected empty ignore list, got %v", set.IgnoreUserAgents)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"thr": 3, "rls": [{"rid": "a", "rtp": "substring", "w": 1, "ps": ["x"]}]}`)

	doc, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	set, err := BuildRules(doc)
	if err != nil {
		t.Fatalf("BuildRules error: %v", err)
	}
	if set.Threshold != 3 {
		t.Fatalf("expected threshold 3, got %d", set.Threshold)
	}
	if set.Rules[0].ID != "a" {
		t.Fatalf("expected rule a, got %q", set.Rules[0].ID)
	}
	if set.Rules[0].Field != "req" {
		t.Fatalf("expected default field req, got %q", set.Rules[0].Field)
	}
}

func TestLoadConfigMissingKeysUseDefaults(t *testing.T) {
	path := writeFile(t, "cfg.json", `{}`)

	doc, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	set, err := BuildRules(doc)
	if err != nil {
		t.Fatalf("BuildRules error: %v", err)
	}
	if set.Threshold != 7 || len(set.Rules) != 6 || len(set.IgnoreUserAgents) != 0 {
		t.Fatalf("unexpected defaults: thr=%d rules=%d ign=%v", set.Threshold, len(set.Rules), set.IgnoreUserAgents)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"bad-json":       `{`,
		"array-root":     `[1, 2]`,
		"scalar-root":    `7`,
		"empty-rules":    `{"rls": []}`,
		"non-list-rules": `{"rls": {"rid": "a"}}`,
		"trailing-data":  `{} {}`,
	}

	for name, content := range cases {
		_, err := LoadConfig(writeFile(t, "cfg.json", content))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		expectConfigError(t, err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	expectConfigError(t, err)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}

func TestLoadConfigNotUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte{'{', 0xff, 0xfe, '}'}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadConfig(path)
	expectConfigError(t, err)
}

func TestBuildRulesMissingFields(t *testing.T) {
	_, err := BuildRules(Document{"thr": 1, "rls": []any{map[string]any{"rid": "a"}}})
	expectConfigError(t, err)

	for _, key := range []string{"rid", "rtp", "w"} {
		obj := map[string]any{"rid": "a", "rtp": "substring", "w": 1}
		delete(obj, key)
		_, err := BuildRules(Document{"rls": []any{obj}})
		expectConfigError(t, err)
		if got := err.Error(); !strings.Contains(got, "missing field: "+key) {
			t.Fatalf("expected missing %s in %q", key, got)
		}
	}
}

func TestBuildRulesRejectsNonObjects(t *testing.T) {
	_, err := BuildRules(Document{"rls": []any{"rule"}})
	expectConfigError(t, err)
}

func TestBuildRulesRequiresRules(t *testing.T) {
	_, err := BuildRules(Document{"thr": 1, "rls": []any{}})
	expectConfigError(t, err)

	_, err = BuildRules(Document{"thr": 1})
	expectConfigError(t, err)
}

func TestBuildRulesCoercion(t *testing.T) {
	doc, err := Decode([]byte(`{
		"thr": "4",
		"ign_ua": ["probe", 5],
		"rls": [
			{"rid": 10, "rtp": "pattern", "w": 2.9, "ps": ["a", 1]},
			{"rid": "b", "rtp": "sub", "w": "3", "fld": "ua"},
			{"rid": "c", "rtp": "substring", "w": -2, "ps": [], "fld": ""}
		]
	}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	set, err := BuildRules(doc)
	if err != nil {
		t.Fatalf("BuildRules error: %v", err)
	}
	if set.Threshold != 4 {
		t.Fatalf("expected threshold 4, got %d", set.Threshold)
	}
	if len(set.IgnoreUserAgents) != 2 || set.IgnoreUserAgents[1] != "5" {
		t.Fatalf("unexpected ignore list %v", set.IgnoreUserAgents)
	}

	first := set.Rules[0]
	if first.ID != "10" || first.Weight != 2 || len(first.Patterns) != 2 || first.Patterns[1] != "1" {
		t.Fatalf("unexpected first rule %+v", first)
	}

	second := set.Rules[1]
	if second.Kind != rules.KindUnsupported || second.Field != "ua" || len(second.Patterns) != 0 {
		t.Fatalf("unexpected second rule %+v", second)
	}

	third := set.Rules[2]
	if third.Weight != -2 || third.Field != "" {
		t.Fatalf("unexpected third rule %+v", third)
	}
}

func TestBuildRulesBadWeight(t *testing.T) {
	_, err := BuildRules(Document{"rls": []any{map[string]any{"rid": "a", "rtp": "substring", "w": "heavy"}}})
	expectConfigError(t, err)
}

func TestBuildRulesBadRegex(t *testing.T) {
	_, err := BuildRules(Document{"rls": []any{map[string]any{"rid": "a", "rtp": "pattern", "w": 1, "ps": []any{"(x"}}}})
	expectConfigError(t, err)
}

func TestProbe(t *testing.T) {
	set, err := BuildRules(Document{"rls": []any{
		map[string]any{"rid": "ok", "rtp": "substring", "w": 1, "ps": []any{"x"}},
	}})
	if err != nil {
		t.Fatalf("BuildRules error: %v", err)
	}
	if err := Probe(set); err != nil {
		t.Fatalf("expected probe ok, got %v", err)
	}

	set, err = BuildRules(Document{"rls": []any{
		map[string]any{"rid": "old", "rtp": "re", "w": 1, "ps": []any{"x"}},
	}})
	if err != nil {
		t.Fatalf("unknown types must load, got %v", err)
	}
	expectConfigError(t, Probe(set))
}
