package rules

import "github.com/waflite/waflite/internal/normalize"

// Matches reports whether the rule matches the record's target field.
func (r Rule) Matches(rec normalize.Record) (bool, error) {
	matched, _, err := r.match(rec)
	return matched, err
}

func (r Rule) match(rec normalize.Record) (bool, string, error) {
	if r.Kind == KindUnsupported || r.matcher == nil {
		return false, "", NewConfigError(nil, "unsupported rule type %q for rule %q", r.TypeName, r.ID)
	}
	matched, evidence := r.matcher.Match(rec.Field(r.Field))
	return matched, evidence, nil
}

// Engine evaluates an ordered list of rules against a record.
type Engine struct {
	Rules []Rule
}

// Evaluate sums the weights of every matching rule in order. The first
// rule that cannot be evaluated aborts the evaluation.
func (e *Engine) Evaluate(rec normalize.Record) (Result, error) {
	result := Result{}

	for _, rule := range e.Rules {
		matched, evidence, err := rule.match(rec)
		if err != nil {
			return Result{}, err
		}
		if !matched {
			continue
		}

		result.Score += rule.Weight
		result.Matches = append(result.Matches, Match{
			RuleID:   rule.ID,
			Field:    rule.Field,
			Weight:   rule.Weight,
			Evidence: evidence,
		})
	}

	return result, nil
}

// Score is the functional form of Engine.Evaluate.
func Score(rules []Rule, rec normalize.Record) (int, []string, error) {
	engine := Engine{Rules: rules}
	result, err := engine.Evaluate(rec)
	if err != nil {
		return 0, nil, err
	}
	return result.Score, result.IDs(), nil
}
