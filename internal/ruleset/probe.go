package ruleset

import "github.com/waflite/waflite/internal/normalize"

var probeRecord = normalize.Record{
	IP:     "192.0.2.1",
	Req:    "GET /probe HTTP/1.1",
	UA:     "waflite-probe",
	Status: 200,
}

// Probe matches every rule once against a synthetic request. Rule types are
// only checked when a rule is evaluated, so this surfaces an unsupported
// type at load time instead of on the first real request.
func Probe(set *RuleSet) error {
	if set == nil {
		return nil
	}
	for _, rule := range set.Rules {
		if _, err := rule.Matches(probeRecord); err != nil {
			return err
		}
	}
	return nil
}
