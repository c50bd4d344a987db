package rules

import "strings"

// Kind selects how a rule interprets its patterns.
type Kind int

const (
	// KindUnsupported is any type name loaded from storage that this build
	// does not know. Such rules load fine and fail when matched.
	KindUnsupported Kind = iota
	KindSubstring
	KindPattern
)

const (
	TypeSubstring = "substring"
	TypePattern   = "pattern"
)

// DefaultField is the record field inspected when a rule names none.
const DefaultField = "req"

func ParseKind(name string) Kind {
	switch name {
	case TypeSubstring:
		return KindSubstring
	case TypePattern:
		return KindPattern
	default:
		return KindUnsupported
	}
}

func (k Kind) String() string {
	switch k {
	case KindSubstring:
		return TypeSubstring
	case KindPattern:
		return TypePattern
	default:
		return "unsupported"
	}
}

// Rule is a compiled detection rule. It is immutable once built and safe
// for concurrent use.
type Rule struct {
	ID       string
	Kind     Kind
	TypeName string
	Weight   int
	Patterns []string
	Field    string

	matcher Matcher
}

// Spec is the persisted form of a rule.
type Spec struct {
	ID       string   `json:"rid"`
	Type     string   `json:"rtp"`
	Weight   int      `json:"w"`
	Patterns []string `json:"ps"`
	Field    string   `json:"fld"`
}

type Match struct {
	RuleID   string
	Field    string
	Weight   int
	Evidence string
}

type Result struct {
	Score   int
	Matches []Match
}

// IDs returns matched rule ids in evaluation order. Duplicates are kept.
func (r Result) IDs() []string {
	ids := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		ids = append(ids, m.RuleID)
	}
	return ids
}

// Matcher returns true if the input matches and a short evidence snippet.
type Matcher interface {
	Match(input string) (bool, string)
}

const maxIDLength = 40

// SanitizeID keeps letters, digits, '_' and '-' of a trimmed id and caps
// the result at 40 characters.
func SanitizeID(id string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(id) {
		if n >= maxIDLength {
			break
		}
		if isIDRune(r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

func isIDRune(r rune) bool {
	switch {
	case r == '_' || r == '-':
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	default:
		return false
	}
}
