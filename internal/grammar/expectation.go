package grammar

import "strings"

// Slot holds the grammar alternatives expected in one priority position.
// A nil slot expects nothing.
type Slot []ID

// ParseSlot splits the backend's "a|b" notation. Blank input yields nil.
func ParseSlot(raw string) Slot {
	var out Slot
	for _, part := range strings.Split(raw, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, ID(p))
		}
	}
	return out
}

func (s Slot) Empty() bool { return len(s) == 0 }

func (s Slot) String() string {
	parts := make([]string, len(s))
	for i, id := range s {
		parts[i] = string(id)
	}
	return strings.Join(parts, "|")
}

// Expectation is the ordered pair of grammar slots the dialogue listens for.
// Primary always outranks secondary.
type Expectation struct {
	Primary   Slot
	Secondary Slot
}

func (e Expectation) Empty() bool { return e.Primary.Empty() && e.Secondary.Empty() }

// Resolution is the outcome of evaluating an Expectation against one text.
type Resolution struct {
	Primary     ID
	PrimaryOK   bool
	Secondary   ID
	SecondaryOK bool
}

// Best returns the authoritative match: primary when it matched, else secondary.
func (r Resolution) Best() (ID, bool) {
	if r.PrimaryOK {
		return r.Primary, true
	}
	if r.SecondaryOK {
		return r.Secondary, true
	}
	return "", false
}
