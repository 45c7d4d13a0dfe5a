package store

import (
	"errors"
	"sync"
	"time"

	"talkml/agent/internal/types"
)

var ErrSessionExists = errors.New("session already exists")

const maxEvents = 200

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	events   map[string][]types.Event
	workers  map[string]WorkerState
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*types.Session),
		events:   make(map[string][]types.Event),
		workers:  make(map[string]WorkerState),
	}
}

// WorkerState captures the speech worker attached to a session.
type WorkerState struct {
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	Commands    int       `json:"commands"`
}

func (s *Store) CreateSession(sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	s.sessions[sess.ID] = sess
	s.events[sess.ID] = []types.Event{}
	return nil
}

// GetSession returns a copy so callers cannot race with status updates.
func (s *Store) GetSession(id string) *types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cp := *sess
	return &cp
}

func (s *Store) SetStatus(id, status string) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.Status = status
	}
	s.mu.Unlock()
}

// AppendEvent records an event, keeping at most maxEvents per session. When
// older events are dropped a single events_truncated marker closes the log.
func (s *Store) AppendEvent(sessionID, typ string, payload map[string]any) types.Event {
	evt := types.Event{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := append(s.events[sessionID], evt)
	if l := len(log); l > maxEvents {
		keep := maxEvents - 1
		dropped := l - keep
		log = append([]types.Event(nil), log[l-keep:]...)
		log = append(log, types.Event{Type: "events_truncated", Ts: time.Now().UTC(), Payload: map[string]any{"session_id": sessionID, "dropped": dropped, "kept": keep}})
	}
	s.events[sessionID] = log
	return evt
}

func (s *Store) ListEvents(sessionID string) []types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[sessionID]
	out := make([]types.Event, len(src))
	copy(out, src)
	return out
}

func (s *Store) SetWorkerConnected(sessionID string, connected bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.workers[sessionID]
	st.Connected = connected
	if connected {
		st.ConnectedAt = at
		if sess, ok := s.sessions[sessionID]; ok {
			t := at
			sess.WorkerConnectedAt = &t
		}
	}
	s.workers[sessionID] = st
}

func (s *Store) CountWorkerCommand(sessionID string) {
	s.mu.Lock()
	st := s.workers[sessionID]
	st.Commands++
	s.workers[sessionID] = st
	s.mu.Unlock()
}

func (s *Store) GetWorkerState(sessionID string) WorkerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workers[sessionID]
}
