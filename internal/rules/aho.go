package rules

import "strings"

// SubstringMatcher finds any of a fixed set of substrings, ignoring case,
// with a single pass of an Aho-Corasick automaton.
type SubstringMatcher struct {
	nodes  []ahoNode
	always bool
}

type ahoNode struct {
	next map[byte]int
	fail int
	out  []string
}

// NewSubstringMatcher builds the automaton over the lower-cased patterns.
// An empty pattern is contained in every input; no patterns match nothing.
func NewSubstringMatcher(patterns []string) *SubstringMatcher {
	m := &SubstringMatcher{nodes: []ahoNode{{next: map[byte]int{}}}}

	for _, pattern := range patterns {
		if pattern == "" {
			m.always = true
			continue
		}
		pattern = strings.ToLower(pattern)
		current := 0
		for i := 0; i < len(pattern); i++ {
			b := pattern[i]
			next, ok := m.nodes[current].next[b]
			if !ok {
				m.nodes = append(m.nodes, ahoNode{next: map[byte]int{}})
				next = len(m.nodes) - 1
				m.nodes[current].next[b] = next
			}
			current = next
		}
		m.nodes[current].out = append(m.nodes[current].out, pattern)
	}

	queue := make([]int, 0, len(m.nodes))
	for _, next := range m.nodes[0].next {
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range m.nodes[state].next {
			fail := m.nodes[state].fail
			for fail != 0 {
				if _, ok := m.nodes[fail].next[b]; ok {
					break
				}
				fail = m.nodes[fail].fail
			}
			if target, ok := m.nodes[fail].next[b]; ok && target != next {
				m.nodes[next].fail = target
			} else {
				m.nodes[next].fail = 0
			}
			m.nodes[next].out = append(m.nodes[next].out, m.nodes[m.nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	return m
}

func (m *SubstringMatcher) Match(input string) (bool, string) {
	if m.always {
		return true, ""
	}
	if len(m.nodes) == 1 {
		return false, ""
	}

	input = strings.ToLower(input)
	state := 0
	for i := 0; i < len(input); i++ {
		b := input[i]
		for state != 0 {
			if _, ok := m.nodes[state].next[b]; ok {
				break
			}
			state = m.nodes[state].fail
		}

		if next, ok := m.nodes[state].next[b]; ok {
			state = next
		}

		if len(m.nodes[state].out) > 0 {
			return true, snippet(m.nodes[state].out[0])
		}
	}

	return false, ""
}
