// Package mailbox hands collaborator events to the dialogue control loop.
//
// Producers (the speech worker bridge, debug endpoints) only ever overwrite the
// latest value; the control loop takes it. Each hand-off is one atomic swap, so
// the loop owns everything else without locks.
package mailbox

import (
	"sync/atomic"
	"time"
)

// Utterance is one piece of recognised speech.
type Utterance struct {
	Text string
	At   time.Time
}

// Activity reports whether speech is currently being detected.
type Activity struct {
	Started bool
	At      time.Time
}

type Inbox struct {
	utterance atomic.Pointer[Utterance]
	activity  atomic.Pointer[Activity]
}

func New() *Inbox { return &Inbox{} }

// PutUtterance replaces any untaken utterance.
func (in *Inbox) PutUtterance(text string, at time.Time) {
	in.utterance.Store(&Utterance{Text: text, At: at})
}

// TakeUtterance empties the slot.
func (in *Inbox) TakeUtterance() (Utterance, bool) {
	u := in.utterance.Swap(nil)
	if u == nil {
		return Utterance{}, false
	}
	return *u, true
}

// SetActivity records the latest speech activity report.
func (in *Inbox) SetActivity(started bool, at time.Time) {
	in.activity.Store(&Activity{Started: started, At: at})
}

// Activity returns the latest activity report, if any was made.
func (in *Inbox) Activity() (Activity, bool) {
	a := in.activity.Load()
	if a == nil {
		return Activity{}, false
	}
	return *a, true
}
