package script

import (
	"strings"

	"talkml/agent/internal/grammar"
)

// Action is a request kind understood by the script backend.
type Action string

const (
	ActionUpload     Action = "upload"
	ActionStart      Action = "start"
	ActionHeard      Action = "heard"
	ActionNoInput    Action = "noinput"
	ActionNoMatch    Action = "nomatch"
	ActionGetSayNext Action = "getSayNext"
)

func (a Action) String() string { return string(a) }

// Directive is what the script wants said next and which grammars it expects
// in reply. The zero value is the empty directive, which ends the dialogue.
type Directive struct {
	Say    string
	Expect grammar.Expectation
}

func (d Directive) Empty() bool { return d.Say == "" && d.Expect.Empty() }

// reply is the wire shape of a backend response.
type reply struct {
	SayThis *string `json:"sayThis"`
	G1      *string `json:"g1"`
	G2      *string `json:"g2"`
}

func (r reply) directive() Directive {
	var d Directive
	if r.SayThis != nil {
		say := strings.TrimSpace(*r.SayThis)
		// Some script engines stringify a missing reply.
		if say != "None" {
			d.Say = say
		}
	}
	if r.G1 != nil {
		d.Expect.Primary = grammar.ParseSlot(*r.G1)
	}
	if r.G2 != nil {
		d.Expect.Secondary = grammar.ParseSlot(*r.G2)
	}
	return d
}

// request is the wire shape of a backend call.
type request struct {
	Version string `json:"version"`
	Action  Action `json:"action"`
	Grammar string `json:"grammar,omitempty"`
	TKML    string `json:"tkml,omitempty"`
}
