// Package grammar resolves listened text against the named grammar rules a
// dialogue script expects.
package grammar

import (
	"sort"
	"strings"
)

// ID names a grammar rule.
type ID string

// Rule is one grammar: it matches when any keyword is contained in the text,
// or when every keyword of some tuple is.
type Rule struct {
	ID       ID
	Keywords []string
	Tuples   [][]string
}

// Match reports whether text satisfies the rule. Comparison is case-insensitive.
func (r Rule) Match(text string) bool {
	text = strings.ToLower(text)
	for _, k := range r.Keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	for _, tuple := range r.Tuples {
		if len(tuple) > 0 && containsAll(text, tuple) {
			return true
		}
	}
	return false
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

// Set is a registry of rules keyed by ID. It is not mutated once the dialogue
// is running, so lookups need no locking.
type Set struct {
	rules map[ID]Rule
}

func NewSet(rules ...Rule) *Set {
	s := &Set{rules: make(map[ID]Rule, len(rules))}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add registers r, merging its alternatives into any rule already known under
// the same ID. Keywords are lower-cased and blank ones dropped. Surrounding
// spaces are kept: " no " only matches no as a whole word.
func (s *Set) Add(r Rule) {
	cur := s.rules[r.ID]
	cur.ID = r.ID
	for _, k := range r.Keywords {
		if k = strings.ToLower(k); !blank(k) {
			cur.Keywords = append(cur.Keywords, k)
		}
	}
	for _, tuple := range r.Tuples {
		var words []string
		for _, w := range tuple {
			if w = strings.ToLower(w); !blank(w) {
				words = append(words, w)
			}
		}
		if len(words) > 0 {
			cur.Tuples = append(cur.Tuples, words)
		}
	}
	s.rules[r.ID] = cur
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// Matches reports whether text satisfies the rule registered as id.
// Unknown ids never match.
func (s *Set) Matches(id ID, text string) bool {
	if s == nil {
		return false
	}
	r, ok := s.rules[id]
	if !ok {
		return false
	}
	return r.Match(text)
}

// Has reports whether id is registered.
func (s *Set) Has(id ID) bool {
	if s == nil {
		return false
	}
	_, ok := s.rules[id]
	return ok
}

// IDs returns the registered ids in sorted order.
func (s *Set) IDs() []ID {
	if s == nil {
		return nil
	}
	out := make([]ID, 0, len(s.rules))
	for id := range s.rules {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve returns the first alternative of slot that text satisfies.
func (s *Set) Resolve(slot Slot, text string) (ID, bool) {
	for _, id := range slot {
		if s.Matches(id, text) {
			return id, true
		}
	}
	return "", false
}

// Evaluate resolves both expectation slots independently against text.
func (s *Set) Evaluate(e Expectation, text string) Resolution {
	var res Resolution
	res.Primary, res.PrimaryOK = s.Resolve(e.Primary, text)
	res.Secondary, res.SecondaryOK = s.Resolve(e.Secondary, text)
	return res
}
