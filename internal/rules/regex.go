package rules

import (
	"regexp"
	"unicode/utf8"
)

// RegexMatcher reports a match when any of its expressions finds a match
// anywhere in the input.
type RegexMatcher struct {
	res []*regexp.Regexp
}

func NewRegexMatcher(patterns []string) (*RegexMatcher, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, err
		}
		res = append(res, re)
	}
	return &RegexMatcher{res: res}, nil
}

func (m *RegexMatcher) Match(input string) (bool, string) {
	for _, re := range m.res {
		loc := re.FindStringIndex(input)
		if loc != nil {
			return true, snippet(input[loc[0]:loc[1]])
		}
	}
	return false, ""
}

const maxEvidence = 64

// snippet cuts value to at most maxEvidence bytes without splitting a rune.
func snippet(value string) string {
	if len(value) <= maxEvidence {
		return value
	}
	cut := maxEvidence
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
