package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/natefinch/lumberjack.v2"
)

const maxEvidence = 64

// Decision is written as a single JSON object per evaluated request.
type Decision struct {
	Timestamp    time.Time     `json:"ts"`
	RequestID    string        `json:"request_id"`
	Source       string        `json:"source"`
	ClientIP     string        `json:"client_ip"`
	Request      string        `json:"req"`
	UserAgent    string        `json:"ua"`
	Score        int           `json:"score"`
	Threshold    int           `json:"threshold"`
	Action       string        `json:"action"`
	StatusCode   int           `json:"status_code,omitempty"`
	MatchedRules []MatchedRule `json:"matched_rules"`
	DurationMS   int64         `json:"duration_ms"`
}

type MatchedRule struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	Weight   int    `json:"weight"`
	Evidence string `json:"evidence"`
}

// DecisionLogger appends decisions as JSON lines. It is safe for
// concurrent use.
type DecisionLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewDecisionLogger(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w}
}

// RotateOptions bound the size of a decision log on disk.
type RotateOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// OpenDecisionLog opens path for appending through a rotating writer.
func OpenDecisionLog(path string, opts RotateOptions) (*DecisionLogger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return NewDecisionLogger(rotator), rotator.Close, nil
}

func (l *DecisionLogger) Write(decision Decision) error {
	if l == nil {
		return nil
	}
	decision.MatchedRules = sanitizeMatchedRules(decision.MatchedRules)

	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func sanitizeMatchedRules(rules []MatchedRule) []MatchedRule {
	out := make([]MatchedRule, len(rules))
	for i, rule := range rules {
		out[i] = rule
		out[i].Evidence = truncateEvidence(rule.Evidence)
	}
	return out
}

func truncateEvidence(s string) string {
	if len(s) <= maxEvidence {
		return s
	}
	cut := maxEvidence
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
