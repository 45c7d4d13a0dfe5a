package turn

import "strings"

// Kind is the type of one turn segment.
type Kind int

const (
	Speech Kind = iota
	Gesture
	Emotion
)

func (k Kind) String() string {
	switch k {
	case Speech:
		return "speech"
	case Gesture:
		return "gesture"
	case Emotion:
		return "emotion"
	default:
		return "unknown"
	}
}

// Segment is one step of a turn: text to speak, or a nonverbal marker.
type Segment struct {
	Kind  Kind
	Value string
}

var markup = map[string]bool{"say": true, "gesture": true, "emotion": true}

// Parse splits speak text into segments. Literal text between markers becomes
// one Speech segment with whitespace collapsed; <gesture>name</gesture> and
// <emotion>name</emotion> become marker segments; <say> wrappers and closing
// tags are dropped. A '<' that opens none of these is kept as text.
func Parse(say string) []Segment {
	var (
		out []Segment
		buf strings.Builder
	)
	flush := func() {
		text := strings.Join(strings.Fields(strings.ReplaceAll(buf.String(), "/", "")), " ")
		buf.Reset()
		if text != "" {
			out = append(out, Segment{Kind: Speech, Value: text})
		}
	}

	rest := say
	for rest != "" {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			buf.WriteString(rest)
			break
		}
		buf.WriteString(rest[:open])
		end := strings.IndexByte(rest[open:], '>')
		if end < 0 {
			// Unterminated tag: treat the remainder as text.
			buf.WriteString(rest[open:])
			break
		}
		tag := strings.ToLower(strings.TrimSpace(rest[open+1 : open+end]))
		if !markup[strings.Trim(tag, "/ ")] {
			buf.WriteByte('<')
			rest = rest[open+1:]
			continue
		}
		rest = rest[open+end+1:]

		var kind Kind
		switch tag {
		case "gesture":
			kind = Gesture
		case "emotion":
			kind = Emotion
		default:
			// Closing tags and <say> carry no action.
			buf.WriteByte(' ')
			continue
		}

		value := rest
		if next := strings.IndexByte(rest, '<'); next >= 0 {
			value = rest[:next]
			rest = rest[next:]
		} else {
			rest = ""
		}
		flush()
		if name := strings.TrimSpace(value); name != "" {
			out = append(out, Segment{Kind: kind, Value: name})
		}
	}
	flush()
	return out
}
