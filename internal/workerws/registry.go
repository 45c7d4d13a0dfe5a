package workerws

import (
	"sync"
	"sync/atomic"

	ws "nhooyr.io/websocket"
)

// Worker is one attached speech worker and the commands awaiting its ack.
type Worker struct {
	conn *ws.Conn
	seq  atomic.Int64

	mu      sync.Mutex
	pending map[string]chan Message

	done     chan struct{}
	doneOnce sync.Once
}

func newWorker(c *ws.Conn) *Worker {
	return &Worker{conn: c, pending: make(map[string]chan Message), done: make(chan struct{})}
}

func (w *Worker) await(commandID string) <-chan Message {
	ch := make(chan Message, 1)
	w.mu.Lock()
	w.pending[commandID] = ch
	w.mu.Unlock()
	return ch
}

func (w *Worker) forget(commandID string) {
	w.mu.Lock()
	delete(w.pending, commandID)
	w.mu.Unlock()
}

// resolve delivers an ack to its waiting command. It reports false for acks
// nobody is waiting for.
func (w *Worker) resolve(ack Message) bool {
	w.mu.Lock()
	ch, ok := w.pending[ack.CommandID]
	delete(w.pending, ack.CommandID)
	w.mu.Unlock()
	if ok {
		ch <- ack
	}
	return ok
}

// close fails every outstanding command.
func (w *Worker) close() {
	w.doneOnce.Do(func() { close(w.done) })
}

// Registry keeps at most one worker connection per session.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Worker
}

func NewRegistry() *Registry { return &Registry{workers: make(map[string]*Worker)} }

// Replace sets the worker for a session and closes the previous one if present.
// The close handshake runs after the swap so lookups never wait on it.
func (r *Registry) Replace(sessionID string, w *Worker) (prevClosed bool) {
	r.mu.Lock()
	old := r.workers[sessionID]
	r.workers[sessionID] = w
	r.mu.Unlock()
	if old == nil {
		return false
	}
	old.close()
	_ = old.conn.Close(ws.StatusNormalClosure, "replaced")
	return true
}

func (r *Registry) Get(sessionID string) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workers[sessionID]
}

// Remove detaches w. A worker that was already replaced leaves its successor
// in place and Remove reports false.
func (r *Registry) Remove(sessionID string, w *Worker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers[sessionID] != w {
		return false
	}
	delete(r.workers, sessionID)
	return true
}

func (r *Registry) Connected(sessionID string) bool { return r.Get(sessionID) != nil }
