// Package workerws attaches the speech worker over a websocket. The worker
// reports recognised speech and voice activity and executes the controller's
// speak, gesture, emotion and microphone commands.
package workerws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"

	"talkml/agent/internal/auth"
	"talkml/agent/internal/mailbox"
	"talkml/agent/internal/store"
)

// InboxFunc resolves the inbox of a running dialogue session, or nil.
type InboxFunc func(sessionID string) *mailbox.Inbox

type Server struct {
	signer  *auth.Signer
	store   *store.Store
	reg     *Registry
	inboxes InboxFunc
	log     *zap.Logger
}

func NewServer(signer *auth.Signer, st *store.Store, reg *Registry, inboxes InboxFunc, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{signer: signer, store: st, reg: reg, inboxes: inboxes, log: log.Named("workerws")}
}

func (s *Server) HandleWorkerWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	if s.store.GetSession(sessionID) == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	inbox := s.inboxes(sessionID)
	if inbox == nil {
		http.Error(w, "session not running", http.StatusNotFound)
		return
	}
	token, err := auth.BearerToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if _, err := s.signer.Verify(token, sessionID); err != nil {
		if errors.Is(err, auth.ErrNoSecret) {
			http.Error(w, "worker auth not configured", http.StatusUnauthorized)
			return
		}
		s.log.Warn("worker token rejected", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("ws accept", zap.Error(err))
		return
	}
	wk := newWorker(c)
	if s.reg.Replace(sessionID, wk) {
		s.store.AppendEvent(sessionID, "worker_replaced", nil)
	}
	s.store.SetWorkerConnected(sessionID, true, time.Now().UTC())
	s.store.AppendEvent(sessionID, "worker_connected", nil)
	gaugeConnected.Set(1)
	s.log.Info("worker connected", zap.String("session_id", sessionID))

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.store.AppendEvent(sessionID, "worker_msg_invalid", map[string]any{"error": err.Error()})
			continue
		}
		s.dispatch(sessionID, wk, inbox, msg)
	}

	wk.close()
	_ = c.Close(ws.StatusNormalClosure, "done")
	if s.reg.Remove(sessionID, wk) {
		s.store.SetWorkerConnected(sessionID, false, time.Now().UTC())
		gaugeConnected.Set(0)
	}
	s.store.AppendEvent(sessionID, "worker_disconnected", nil)
	s.log.Info("worker disconnected", zap.String("session_id", sessionID))
}

// dispatch routes one worker message. Recognised speech and activity go to
// the inbox stamped with our own clock; acks wake the waiting command.
func (s *Server) dispatch(sessionID string, wk *Worker, inbox *mailbox.Inbox, msg Message) {
	metricMessages.WithLabelValues(msg.Type).Inc()
	now := time.Now()
	switch msg.Type {
	case TypeUtterance:
		text := strings.TrimSpace(msg.str("text"))
		if text == "" {
			return
		}
		inbox.PutUtterance(text, now)
		s.store.AppendEvent(sessionID, "utterance_received", map[string]any{"text": text, "seq": msg.Seq})
	case TypeSpeaking:
		inbox.SetActivity(msg.flag("started"), now)
	case TypeAck:
		if !wk.resolve(msg) {
			s.store.AppendEvent(sessionID, "cmd_ack", map[string]any{"command_id": msg.CommandID, "note": "unexpected"})
		}
	case TypeHello:
		s.store.AppendEvent(sessionID, "worker_hello", msg.Payload)
	default:
		s.log.Debug("unknown worker message", zap.String("type", msg.Type))
	}
}
