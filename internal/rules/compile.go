package rules

// Build compiles a persisted rule. Unknown types build into an
// unsupported rule that fails when matched; a pattern that does not
// compile as a regular expression fails here.
func (s Spec) Build() (Rule, error) {
	return NewRule(s.ID, s.Type, s.Weight, s.Patterns, s.Field)
}

func NewRule(id, typeName string, weight int, patterns []string, field string) (Rule, error) {
	rule := Rule{
		ID:       id,
		Kind:     ParseKind(typeName),
		TypeName: typeName,
		Weight:   weight,
		Patterns: append([]string{}, patterns...),
		Field:    field,
	}

	switch rule.Kind {
	case KindSubstring:
		rule.matcher = NewSubstringMatcher(rule.Patterns)
	case KindPattern:
		matcher, err := NewRegexMatcher(rule.Patterns)
		if err != nil {
			return Rule{}, NewConfigError(err, "rule %q: bad pattern", id)
		}
		rule.matcher = matcher
	}

	return rule, nil
}

// Spec returns the persisted form of the rule.
func (r Rule) Spec() Spec {
	return Spec{
		ID:       r.ID,
		Type:     r.TypeName,
		Weight:   r.Weight,
		Patterns: append([]string{}, r.Patterns...),
		Field:    r.Field,
	}
}

// Document returns the rule as a generic JSON object, the shape rule
// sets are stored in.
func (s Spec) Document() map[string]any {
	patterns := make([]any, len(s.Patterns))
	for i, p := range s.Patterns {
		patterns[i] = p
	}
	return map[string]any{
		"rid": s.ID,
		"rtp": s.Type,
		"w":   s.Weight,
		"ps":  patterns,
		"fld": s.Field,
	}
}
