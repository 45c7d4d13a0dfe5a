package dialogue

import (
	"time"

	"talkml/agent/internal/grammar"
	"talkml/agent/internal/script"
)

// State is the controller's position in the turn-taking cycle.
type State int

const (
	WaitToTalk State = iota
	Talking
	WaitToHear
	Hearing
	Heard
)

func (s State) String() string {
	switch s {
	case WaitToTalk:
		return "wait_to_talk"
	case Talking:
		return "talking"
	case WaitToHear:
		return "wait_to_hear"
	case Hearing:
		return "hearing"
	case Heard:
		return "heard"
	default:
		return "unknown"
	}
}

// Timing holds the controller's deadlines. All values must be positive.
type Timing struct {
	Tick           time.Duration
	NoInput        time.Duration
	NoMatch        time.Duration
	HeardStability time.Duration
	// MaxHearing caps a hearing cycle however long the user keeps talking.
	MaxHearing time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Tick:           100 * time.Millisecond,
		NoInput:        7 * time.Second,
		NoMatch:        4 * time.Second,
		HeardStability: 1500 * time.Millisecond,
		MaxHearing:     15 * time.Second,
	}
}

// request is a backend call the next WaitToTalk tick must make.
type request struct {
	action  script.Action
	grammar grammar.ID
}

// session is everything the control loop owns. Nothing outside the loop
// goroutine reads or writes it; observers get a Snapshot.
type session struct {
	state State
	since time.Time

	expect grammar.Expectation
	last   grammar.Resolution

	// hearing cycle
	cycle      uint64
	cycleStart time.Time
	text       string
	heardID    grammar.ID

	// work queued for WaitToTalk
	pendingReq   *request
	pendingReply *script.Directive
	say          string

	halted   bool
	haltedAt time.Time

	// no speech worker to play turns to
	waiting bool
}

// Snapshot is a read-only view of the controller published after each tick.
type Snapshot struct {
	State       string    `json:"state"`
	Since       time.Time `json:"since"`
	Primary     string    `json:"primary,omitempty"`
	Secondary   string    `json:"secondary,omitempty"`
	Text        string    `json:"text,omitempty"`
	Match       string    `json:"match,omitempty"`
	Speculative string    `json:"speculative,omitempty"`
	Cycle       uint64    `json:"cycle"`
	Halted      bool      `json:"halted"`
	Waiting     bool      `json:"waiting_for_worker"`
}
