package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/waflite/waflite/internal/config"
	"github.com/waflite/waflite/internal/logging"
	"github.com/waflite/waflite/internal/rules"
	"github.com/waflite/waflite/internal/ruleset"
)

type staticSource struct {
	set *ruleset.RuleSet
	err error
}

func (s staticSource) Load() (*ruleset.RuleSet, error) {
	return s.set, s.err
}

func defaultSource(t *testing.T, threshold int) staticSource {
	t.Helper()
	return staticSource{set: &ruleset.RuleSet{Threshold: threshold, Rules: rules.Defaults()}}
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(backend.Close)
	return backend
}

func guardConfig(upstream string) config.GuardConfig {
	return config.GuardConfig{
		Enabled:  true,
		Upstream: upstream,
		Protect:  []string{"/shop", "/api/shop"},
		Timeout:  2 * time.Second,
	}
}

func TestGatewayProxy(t *testing.T) {
	backend := newBackend(t)

	gw, err := New(guardConfig(backend.URL), defaultSource(t, 7))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/shop/item/1", nil)
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "ok" {
		t.Fatalf("expected body ok, got %q", string(body))
	}
}

func TestGatewayBlocksGuardedRequest(t *testing.T) {
	backend := newBackend(t)

	var logBuf bytes.Buffer
	gw, err := New(guardConfig(backend.URL), defaultSource(t, 7))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	gw.SetDecisionLogger(logging.NewDecisionLogger(&logBuf))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/shop?q=1'+UNION+SELECT+1", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "blocked by waflite (scr=11, thr=7, m=sqli_1,sqli_2)" {
		t.Fatalf("unexpected block body %q", got)
	}

	var decision logging.Decision
	if err := json.Unmarshal(bytes.TrimSpace(logBuf.Bytes()), &decision); err != nil {
		t.Fatalf("invalid decision log: %v", err)
	}
	if decision.RequestID != "req-42" || decision.Action != "block" || decision.Source != "guard" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if len(decision.MatchedRules) != 2 {
		t.Fatalf("expected 2 matched rules, got %+v", decision.MatchedRules)
	}
}

func TestGatewayUnguardedPathIsNotEvaluated(t *testing.T) {
	backend := newBackend(t)

	gw, err := New(guardConfig(backend.URL), staticSource{err: errors.New("store down")})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/about?q=<script>", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected unguarded pass-through, got %d", rec.Code)
	}
}

func TestGatewayCustomBlockStatus(t *testing.T) {
	backend := newBackend(t)
	cfg := guardConfig(backend.URL)
	cfg.BlockStatusCode = 451

	gw, err := New(cfg, defaultSource(t, 1))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/shop/items", nil)
	req.Header.Set("User-Agent", "nikto")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != 451 {
		t.Fatalf("expected 451, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "m=ua_1") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestGatewayRuleSetErrors(t *testing.T) {
	backend := newBackend(t)

	legacy, err := rules.NewRule("legacy", "re", 1, []string{"x"}, "req")
	if err != nil {
		t.Fatalf("NewRule error: %v", err)
	}
	sources := []staticSource{
		{err: rules.NewConfigError(nil, "broken store")},
		{set: &ruleset.RuleSet{Threshold: 7, Rules: []rules.Rule{legacy}}},
	}

	for i, source := range sources {
		gw, err := New(guardConfig(backend.URL), source)
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/shop", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("case %d: expected 500, got %d", i, rec.Code)
		}
	}
}

func TestRecord(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/shop/cart/add?id=2&x=%27", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("User-Agent", "Mozilla/5.0")

	rec := Record(req)
	if rec.IP != "203.0.113.7" || rec.UA != "Mozilla/5.0" || rec.Status != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Req != "POST /shop/cart/add?id=2&x=%27 HTTP/1.1" {
		t.Fatalf("unexpected request line %q", rec.Req)
	}
}

func TestNewRejectsBadUpstream(t *testing.T) {
	if _, err := New(config.GuardConfig{Upstream: "not a url"}, defaultSource(t, 7)); err == nil {
		t.Fatal("expected upstream error")
	}
	if _, err := New(guardConfig("http://127.0.0.1:1"), nil); err == nil {
		t.Fatal("expected missing source error")
	}
}

func TestRedactSecrets(t *testing.T) {
	got := redactSecrets("GET /login?password=hunter2&user=a HTTP/1.1")
	if strings.Contains(got, "hunter2") {
		t.Fatalf("expected password redacted, got %q", got)
	}

	got = redactSecrets("Authorization: Bearer abc.DEF-123_x/y+z== trailing")
	if strings.Contains(got, "abc.DEF") || strings.Contains(got, "/y+z") {
		t.Fatalf("expected bearer token redacted, got %q", got)
	}
	if !strings.Contains(got, "bearer <redacted> trailing") {
		t.Fatalf("unexpected redaction %q", got)
	}
}
