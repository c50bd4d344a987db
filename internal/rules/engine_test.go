package rules

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/waflite/waflite/internal/normalize"
)

func mustRule(t *testing.T, id, typeName string, weight int, field string, patterns ...string) Rule {
	t.Helper()
	rule, err := NewRule(id, typeName, weight, patterns, field)
	if err != nil {
		t.Fatalf("NewRule(%s) error: %v", id, err)
	}
	return rule
}

func TestRuleMatches(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		req  string
		want bool
	}{
		{"substring-hit", mustRule(t, "a", TypeSubstring, 1, "req", "../"), "/../../etc/passwd", true},
		{"substring-miss", mustRule(t, "a", TypeSubstring, 1, "req", "../"), "/ok", false},
		{"substring-case", mustRule(t, "a", TypeSubstring, 1, "req", "UNION"), "1 union select", true},
		{"pattern-hit", mustRule(t, "b", TypePattern, 1, "req", `\bselect\b`), "SELECT 1", true},
		{"pattern-miss", mustRule(t, "b", TypePattern, 1, "req", `\bselect\b`), "hello", false},
		{"pattern-search", mustRule(t, "b", TypePattern, 1, "req", `script`), "GET /?q=<script>", true},
		{"no-patterns", mustRule(t, "c", TypeSubstring, 1, "req"), "anything", false},
		{"empty-substring", mustRule(t, "c", TypeSubstring, 1, "req", ""), "anything", true},
		{"unknown-field", mustRule(t, "d", TypePattern, 1, "headers", `.*`), "GET /", true},
		{"unknown-field-substring", mustRule(t, "d", TypeSubstring, 1, "headers", "GET"), "GET /", false},
	}

	for _, tt := range cases {
		got, err := tt.rule.Matches(normalize.Record{Req: tt.req})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestRuleMatchesUserAgentField(t *testing.T) {
	rule := mustRule(t, "ua", TypePattern, 3, "ua", `\b(sqlmap|nikto)\b`)
	ok, err := rule.Matches(normalize.Record{Req: "GET /", UA: "sqlmap/1.7"})
	if err != nil || !ok {
		t.Fatalf("expected ua match, got %v %v", ok, err)
	}
}

func TestRuleMatchesUnsupportedType(t *testing.T) {
	rule := mustRule(t, "x", "zzz", 1, "req", "a")
	if rule.Kind != KindUnsupported {
		t.Fatalf("expected unsupported kind, got %v", rule.Kind)
	}

	records := []normalize.Record{{Req: "a"}, {}, {UA: "a"}}
	for _, rec := range records {
		_, err := rule.Matches(rec)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigError, got %v", err)
		}
	}
}

func TestNewRuleBadPattern(t *testing.T) {
	_, err := NewRule("bad", TypePattern, 1, []string{"(unclosed"}, "req")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestScore(t *testing.T) {
	rules := []Rule{
		mustRule(t, "t1", TypeSubstring, 4, "req", "../"),
		mustRule(t, "t2", TypePattern, 5, "req", `<\s*script\b`),
	}

	score, ids, err := Score(rules, normalize.Record{Req: "/../../etc/passwd"})
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if score != 4 || len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("expected (4, [t1]), got (%d, %v)", score, ids)
	}

	score, ids, err = Score(rules, normalize.Record{Req: "/?q=<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if score != 5 || len(ids) != 1 || ids[0] != "t2" {
		t.Fatalf("expected (5, [t2]), got (%d, %v)", score, ids)
	}
}

func TestScoreKeepsOrderAndDuplicates(t *testing.T) {
	rules := []Rule{
		mustRule(t, "dup", TypeSubstring, 2, "req", "a"),
		mustRule(t, "neg", TypeSubstring, -1, "req", "a"),
		mustRule(t, "dup", TypePattern, 3, "req", "a"),
	}

	engine := Engine{Rules: rules}
	result, err := engine.Evaluate(normalize.Record{Req: "a"})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if result.Score != 4 {
		t.Fatalf("expected score 4, got %d", result.Score)
	}
	ids := result.IDs()
	want := []string{"dup", "neg", "dup"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestScoreFailsOnUnsupportedRule(t *testing.T) {
	rules := []Rule{
		mustRule(t, "ok", TypeSubstring, 1, "req", "a"),
		mustRule(t, "bad", "re", 1, "req", "a"),
	}
	if _, _, err := Score(rules, normalize.Record{Req: "a"}); err == nil {
		t.Fatal("expected error for unsupported rule type")
	}
}

func TestSubstringMatcherOverlappingPatterns(t *testing.T) {
	m := NewSubstringMatcher([]string{"he", "she", "hers", "%2E%2E%2F"})
	cases := map[string]bool{
		"ushers":        true,
		"ahishe":        true,
		"h":             false,
		"/%2e%2e%2fetc": true,
		"":              false,
	}
	for input, want := range cases {
		got, _ := m.Match(input)
		if got != want {
			t.Fatalf("Match(%q) expected %v, got %v", input, want, got)
		}
	}
}

func TestDefaults(t *testing.T) {
	first := Defaults()
	if len(first) != 6 {
		t.Fatalf("expected 6 default rules, got %d", len(first))
	}

	wantWeights := map[string]int{"sqli_1": 5, "sqli_2": 6, "xss_1": 5, "trav_1": 4, "cmd_1": 6, "ua_1": 3}
	for _, rule := range first {
		if rule.Weight != wantWeights[rule.ID] {
			t.Fatalf("rule %s: expected weight %d, got %d", rule.ID, wantWeights[rule.ID], rule.Weight)
		}
	}

	first[0].Patterns[0] = "mutated"
	second := DefaultSpecs()
	if second[0].Patterns[0] == "mutated" {
		t.Fatal("default rules must not share state between calls")
	}
}

func TestDefaultsScoring(t *testing.T) {
	cases := []struct {
		name  string
		rec   normalize.Record
		score int
	}{
		{"clean", normalize.Record{Req: "GET /index.html HTTP/1.1", UA: "Mozilla/5.0"}, 0},
		{"traversal", normalize.Record{Req: "GET /../../etc/passwd HTTP/1.1"}, 4},
		{"union", normalize.Record{Req: "GET /?id=1 UNION SELECT 1 HTTP/1.1"}, 6},
		{"quote-union", normalize.Record{Req: "GET /?id=1' UNION SELECT 1 HTTP/1.1"}, 11},
		{"xss", normalize.Record{Req: "GET /?q=<script>alert(1)</script> HTTP/1.1"}, 5},
		{"cmd", normalize.Record{Req: "GET /?x=;bash -i HTTP/1.1"}, 6},
		{"scanner", normalize.Record{Req: "GET / HTTP/1.1", UA: "sqlmap/1.7"}, 3},
	}

	rules := Defaults()
	for _, tt := range cases {
		score, _, err := Score(rules, tt.rec)
		if err != nil {
			t.Fatalf("%s: error %v", tt.name, err)
		}
		if score != tt.score {
			t.Fatalf("%s: expected score %d, got %d", tt.name, tt.score, score)
		}
	}
}

func TestSanitizeID(t *testing.T) {
	cases := map[string]string{
		"  sqli_x  ":    "sqli_x",
		"a b/c<d>":      "abcd",
		"rule-1":        "rule-1",
		"":              "",
		"%%%":           "",
		"abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGH": "abcdefghijklmnopqrstuvwxyz0123456789ABCD",
	}
	for in, want := range cases {
		if got := SanitizeID(in); got != want {
			t.Fatalf("SanitizeID(%q) expected %q, got %q", in, want, got)
		}
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	value := strings.Repeat("a", maxEvidence-1) + "é tail"
	got := snippet(value)
	if len(got) != maxEvidence-1 || !utf8.ValidString(got) {
		t.Fatalf("expected cut before the split rune, got %d bytes %q", len(got), got)
	}
	if snippet("short") != "short" {
		t.Fatal("short values must be kept")
	}
}
