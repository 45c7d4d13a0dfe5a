// Package floor tracks who holds the conversational floor and when the user
// was last heard. It is owned by the dialogue control loop and is not safe for
// concurrent use.
package floor

import (
	"time"

	"talkml/agent/internal/mailbox"
)

// Decision represents what the controller should do after an input.
type Decision struct {
	BeginHearing bool
	Reason       string // e.g. "activity", "utterance"
}

type Manager struct {
	systemTalking bool
	userSpeaking  bool
	lastActivity  time.Time
	lastReport    time.Time
}

func New() *Manager { return &Manager{} }

// OnTurnStarted hands the floor to the system; user activity reports are
// ignored until the turn finishes.
func (m *Manager) OnTurnStarted(now time.Time) {
	m.systemTalking = true
	m.userSpeaking = false
}

func (m *Manager) OnTurnFinished(now time.Time) {
	m.systemTalking = false
	m.lastActivity = now
}

// OnActivity consumes the latest activity report. Reports already seen are
// ignored, so the caller may pass the inbox level every tick.
func (m *Manager) OnActivity(a mailbox.Activity, now time.Time) Decision {
	if !a.At.After(m.lastReport) {
		return Decision{}
	}
	m.lastReport = a.At
	if m.systemTalking {
		return Decision{}
	}
	m.userSpeaking = a.Started
	m.lastActivity = now
	if a.Started {
		return Decision{BeginHearing: true, Reason: "activity"}
	}
	return Decision{}
}

// OnUtterance marks text arriving as activity.
func (m *Manager) OnUtterance(now time.Time) Decision {
	m.lastActivity = now
	return Decision{BeginHearing: true, Reason: "utterance"}
}

// Tick extends the activity window while the user is still speaking.
func (m *Manager) Tick(now time.Time) {
	if m.userSpeaking {
		m.lastActivity = now
	}
}

// Reset starts a fresh hearing window at now. Activity reported before now
// belongs to the previous window and is ignored.
func (m *Manager) Reset(now time.Time) {
	m.lastActivity = now
	m.userSpeaking = false
	if now.After(m.lastReport) {
		m.lastReport = now
	}
}

func (m *Manager) UserSpeaking() bool { return m.userSpeaking }

func (m *Manager) LastActivity() time.Time { return m.lastActivity }

// QuietFor reports whether no speech activity has been seen for at least d.
func (m *Manager) QuietFor(now time.Time, d time.Duration) bool {
	return !m.userSpeaking && now.Sub(m.lastActivity) >= d
}
