package policy

import (
	"strings"

	"github.com/waflite/waflite/internal/normalize"
	"github.com/waflite/waflite/internal/rules"
	"github.com/waflite/waflite/internal/ruleset"
)

type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// IgnorePenalty is subtracted from the score of a request whose user agent
// is on the ignore list.
const IgnorePenalty = 3

// Verdict is the outcome of evaluating one request.
type Verdict struct {
	Score     int           `json:"score"`
	Decision  Action        `json:"decision"`
	Threshold int           `json:"threshold"`
	Matched   []string      `json:"matched"`
	Matches   []rules.Match `json:"-"`
}

func (v Verdict) Blocked() bool {
	return v.Decision == ActionBlock
}

// Decide blocks when score reaches threshold.
func Decide(score, threshold int) Action {
	if score >= threshold {
		return ActionBlock
	}
	return ActionAllow
}

// AdjustForIgnoredAgents lowers score by IgnorePenalty, never below zero,
// when ua contains any ignore entry. Comparison is case-insensitive.
func AdjustForIgnoredAgents(score int, ua string, ignore []string) int {
	if !ignoredAgent(ua, ignore) {
		return score
	}
	score -= IgnorePenalty
	if score < 0 {
		return 0
	}
	return score
}

func ignoredAgent(ua string, ignore []string) bool {
	lower := strings.ToLower(ua)
	for _, entry := range ignore {
		if strings.Contains(lower, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

// Evaluate normalizes fields and evaluates them against set.
func Evaluate(set *ruleset.RuleSet, fields map[string]any) (Verdict, error) {
	return EvaluateRecord(set, normalize.Fields(fields))
}

// EvaluateRecord scores rec, applies the ignore list and decides. A rule
// that cannot be evaluated fails the whole evaluation.
func EvaluateRecord(set *ruleset.RuleSet, rec normalize.Record) (Verdict, error) {
	if set == nil {
		return Verdict{}, rules.NewConfigError(nil, "no rule set loaded")
	}

	engine := rules.Engine{Rules: set.Rules}
	result, err := engine.Evaluate(rec)
	if err != nil {
		return Verdict{}, err
	}

	score := AdjustForIgnoredAgents(result.Score, rec.UA, set.IgnoreUserAgents)
	return Verdict{
		Score:     score,
		Decision:  Decide(score, set.Threshold),
		Threshold: set.Threshold,
		Matched:   result.IDs(),
		Matches:   result.Matches,
	}, nil
}
