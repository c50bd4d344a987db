package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waflite/waflite/internal/config"
	"github.com/waflite/waflite/internal/logging"
	"github.com/waflite/waflite/internal/normalize"
	"github.com/waflite/waflite/internal/observability"
	"github.com/waflite/waflite/internal/policy"
	"github.com/waflite/waflite/internal/rules"
	"github.com/waflite/waflite/internal/ruleset"
)

const RequestIDHeader = "X-Request-ID"

// RuleSource supplies the rule set for each guarded request.
type RuleSource interface {
	Load() (*ruleset.RuleSet, error)
}

// Gateway is a reverse proxy that evaluates requests under protected path
// prefixes before forwarding them.
type Gateway struct {
	router      *Router
	proxy       *httputil.ReverseProxy
	source      RuleSource
	blockStatus int
	timeout     time.Duration

	decisionLog *logging.DecisionLogger
	metrics     *observability.Metrics
	logger      logrus.FieldLogger
}

func New(cfg config.GuardConfig, source RuleSource) (*Gateway, error) {
	if source == nil {
		return nil, errors.New("rule source is required")
	}

	target, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream %q must include scheme and host", cfg.Upstream)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultGuardTimeout
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = newTransport(timeout)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		default:
			http.Error(w, "upstream error", http.StatusBadGateway)
		}
	}

	return &Gateway{
		router:      NewRouter(cfg.Protect),
		proxy:       proxy,
		source:      source,
		blockStatus: blockStatus(cfg.BlockStatusCode),
		timeout:     timeout,
		logger:      logging.Discard(),
	}, nil
}

func (g *Gateway) SetDecisionLogger(logger *logging.DecisionLogger) {
	g.decisionLog = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

func (g *Gateway) SetLogger(logger logrus.FieldLogger) {
	if logger != nil {
		g.logger = logger
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()
	r = r.WithContext(ctx)

	prefix, guarded := g.router.Match(r)
	if !guarded {
		g.proxy.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	rec := Record(r)
	decision := logging.Decision{
		Timestamp: start.UTC(),
		RequestID: requestID(r),
		Source:    observability.SourceGuard,
		ClientIP:  rec.IP,
		Request:   redactSecrets(rec.Req),
		UserAgent: rec.UA,
	}
	log := g.logger.WithFields(logrus.Fields{"request_id": decision.RequestID, "prefix": prefix})

	set, err := g.source.Load()
	if err == nil {
		var verdict policy.Verdict
		verdict, err = policy.EvaluateRecord(set, rec)
		if err == nil {
			g.serveVerdict(w, r, decision, verdict, start, log)
			return
		}
	}

	var cfgErr *rules.ConfigError
	if errors.As(err, &cfgErr) {
		g.metrics.ConfigError(observability.SourceGuard)
	}
	log.WithError(err).Error("rule evaluation failed")
	http.Error(w, "rule set unavailable", http.StatusInternalServerError)
}

func (g *Gateway) serveVerdict(w http.ResponseWriter, r *http.Request, decision logging.Decision, verdict policy.Verdict, start time.Time, log logrus.FieldLogger) {
	decision.Score = verdict.Score
	decision.Threshold = verdict.Threshold
	decision.Action = string(verdict.Decision)
	decision.MatchedRules = mapMatches(verdict.Matches)

	if verdict.Blocked() {
		decision.StatusCode = g.blockStatus
		g.writeDecision(decision, start)
		log.WithFields(logrus.Fields{"score": verdict.Score, "matched": verdict.Matched}).Info("request blocked")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(g.blockStatus)
		_, _ = fmt.Fprint(w, BlockMessage(verdict))
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	g.proxy.ServeHTTP(recorder, r)
	decision.StatusCode = recorder.status
	g.writeDecision(decision, start)
}

// BlockMessage is the response body for a blocked request.
func BlockMessage(v policy.Verdict) string {
	return fmt.Sprintf("blocked by waflite (scr=%d, thr=%d, m=%s)", v.Score, v.Threshold, strings.Join(v.Matched, ","))
}

// Record describes an HTTP request as a normalized record. The request line
// always names HTTP/1.1 and the status is 0.
func Record(r *http.Request) normalize.Record {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return normalize.Record{
		IP:  clientIP(r),
		Req: fmt.Sprintf("%s %s HTTP/1.1", r.Method, target),
		UA:  r.Header.Get("User-Agent"),
	}
}

func (g *Gateway) writeDecision(decision logging.Decision, start time.Time) {
	elapsed := time.Since(start)
	decision.DurationMS = elapsed.Milliseconds()
	if err := g.decisionLog.Write(decision); err != nil {
		g.logger.WithError(err).Warn("decision log write failed")
	}
	g.metrics.Observe(decision, elapsed)
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

func mapMatches(matches []rules.Match) []logging.MatchedRule {
	out := make([]logging.MatchedRule, len(matches))
	for i, m := range matches {
		out[i] = logging.MatchedRule{
			ID:       m.RuleID,
			Field:    m.Field,
			Weight:   m.Weight,
			Evidence: redactSecrets(m.Evidence),
		}
	}
	return out
}

var (
	secretKVPattern     = regexp.MustCompile(`(?i)\b(password|passwd|token|api[_-]?key|secret)\s*=\s*([^\s&]+)`) // key=value
	secretBearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/\\-]+=*`)
)

func redactSecrets(input string) string {
	if input == "" {
		return input
	}
	redacted := secretKVPattern.ReplaceAllString(input, `$1=<redacted>`)
	redacted = secretBearerPattern.ReplaceAllString(redacted, "bearer <redacted>")
	return redacted
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func blockStatus(code int) int {
	if code > 0 {
		return code
	}
	return http.StatusForbidden
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
