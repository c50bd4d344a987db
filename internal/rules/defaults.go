package rules

// DefaultSpecs returns a fresh copy of the built-in rule set covering SQL
// injection, XSS, path traversal, command injection and scanner agents.
func DefaultSpecs() []Spec {
	return []Spec{
		{ID: "sqli_1", Type: TypePattern, Weight: 5, Field: "req", Patterns: []string{
			`(\%27)|(\')|(\-\-)|(\%23)|(#)`,
		}},
		{ID: "sqli_2", Type: TypePattern, Weight: 6, Field: "req", Patterns: []string{
			`\b(UNION|SELECT|INSERT|UPDATE|DELETE|DROP)\b`,
		}},
		{ID: "xss_1", Type: TypePattern, Weight: 5, Field: "req", Patterns: []string{
			`<\s*script\b`,
			`onerror\s*=`,
			`onload\s*=`,
		}},
		{ID: "trav_1", Type: TypeSubstring, Weight: 4, Field: "req", Patterns: []string{
			"../",
			`..\`,
			"%2e%2e%2f",
			"%2e%2e%5c",
		}},
		{ID: "cmd_1", Type: TypePattern, Weight: 6, Field: "req", Patterns: []string{
			"[;&|`]\\s*(bash|sh|cmd|powershell)\\b",
			`\b(wget|curl)\b\s+https?://`,
		}},
		{ID: "ua_1", Type: TypePattern, Weight: 3, Field: "ua", Patterns: []string{
			`\b(sqlmap|nikto|nmap|acunetix|masscan)\b`,
		}},
	}
}

// Defaults compiles DefaultSpecs. Each call returns an independent slice.
func Defaults() []Rule {
	specs := DefaultSpecs()
	out := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := spec.Build()
		if err != nil {
			panic("rules: bad built-in rule " + spec.ID + ": " + err.Error())
		}
		out = append(out, rule)
	}
	return out
}
