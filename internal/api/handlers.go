package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"talkml/agent/internal/dialogue"
	"talkml/agent/internal/mailbox"
	"talkml/agent/internal/store"
)

// Dialogue is the running controller as seen by the HTTP surface.
type Dialogue interface {
	Snapshot() dialogue.Snapshot
	Inbox() *mailbox.Inbox
}

type Handlers struct {
	sessionID string
	store     *store.Store
	dlg       Dialogue
	now       func() time.Time
}

func NewHandlers(sessionID string, st *store.Store, dlg Dialogue) *Handlers {
	return &Handlers{sessionID: sessionID, store: st, dlg: dlg, now: time.Now}
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dlg.Snapshot())
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	sess := h.store.GetSession(h.sessionID)
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": h.sessionID,
		"session":    sess,
		"worker":     h.store.GetWorkerState(h.sessionID),
		"events":     h.store.ListEvents(h.sessionID),
	})
}

// HandleDebugUtterance injects recognised text as if the worker had heard it.
func (h *Handlers) HandleDebugUtterance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	h.dlg.Inbox().PutUtterance(text, h.now())
	h.store.AppendEvent(h.sessionID, "debug_utterance", map[string]any{"text": text})
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// HandleDebugActivity injects a voice activity report.
func (h *Handlers) HandleDebugActivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Started *bool `json:"started"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Started == nil {
		http.Error(w, "started is required", http.StatusBadRequest)
		return
	}
	h.dlg.Inbox().SetActivity(*body.Started, h.now())
	h.store.AppendEvent(h.sessionID, "debug_activity", map[string]any{"started": *body.Started})
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
