package workerws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"talkml/agent/internal/auth"
	"talkml/agent/internal/mailbox"
	"talkml/agent/internal/store"
	"talkml/agent/internal/turn"
	"talkml/agent/internal/types"
)

type env struct {
	srv    *httptest.Server
	st     *store.Store
	reg    *Registry
	inbox  *mailbox.Inbox
	signer *auth.Signer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		st:     store.New(),
		reg:    NewRegistry(),
		inbox:  mailbox.New(),
		signer: auth.NewSigner("k", time.Minute),
	}
	require.NoError(t, e.st.CreateSession(&types.Session{ID: "s1"}))
	s := NewServer(e.signer, e.st, e.reg, func(sid string) *mailbox.Inbox {
		if sid == "s1" {
			return e.inbox
		}
		return nil
	}, nil)
	e.srv = httptest.NewServer(http.HandlerFunc(s.HandleWorkerWS))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) token(t *testing.T) string {
	t.Helper()
	tok, err := e.signer.Issue("s1", time.Minute)
	require.NoError(t, err)
	return tok
}

func (e *env) dial(sessionID, token string) (*ws.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/worker?session_id=" + sessionID
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return ws.Dial(context.Background(), url, &ws.DialOptions{HTTPHeader: h})
}

func (e *env) connect(t *testing.T) *ws.Conn {
	t.Helper()
	c, _, err := e.dial("s1", e.token(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ws.StatusNormalClosure, "") })
	require.Eventually(t, func() bool { return e.reg.Connected("s1") }, 2*time.Second, 5*time.Millisecond)
	return c
}

// fakeWorker answers every command. reply may add payload to an ack; a nil
// map from reply means the command is left unanswered.
type fakeWorker struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeWorker) run(ctx context.Context, c *ws.Conn, reply func(Message) map[string]any) {
	for {
		var m Message
		if err := wsjson.Read(ctx, c, &m); err != nil {
			return
		}
		f.mu.Lock()
		f.seen = append(f.seen, m.Type)
		f.mu.Unlock()
		p := map[string]any{}
		if reply != nil {
			if p = reply(m); p == nil {
				continue
			}
		}
		_ = wsjson.Write(ctx, c, Message{Type: TypeAck, CommandID: m.CommandID, SessionID: m.SessionID, Payload: p})
	}
}

func (f *fakeWorker) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func TestRejectsUnauthorizedWorkers(t *testing.T) {
	e := newEnv(t)

	_, resp, err := e.dial("s1", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = e.dial("s1", "bogus.token")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = e.dial("nope", e.token(t))
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.False(t, e.reg.Connected("s1"))
}

func TestWorkerInputReachesInbox(t *testing.T) {
	e := newEnv(t)
	c := e.connect(t)
	ctx := context.Background()

	require.NoError(t, wsjson.Write(ctx, c, Message{Type: TypeSpeaking, Payload: map[string]any{"started": true}}))
	require.Eventually(t, func() bool {
		a, ok := e.inbox.Activity()
		return ok && a.Started
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, wsjson.Write(ctx, c, Message{Type: TypeUtterance, Payload: map[string]any{"text": "  yes please "}}))
	var got mailbox.Utterance
	require.Eventually(t, func() bool {
		u, ok := e.inbox.TakeUtterance()
		got = u
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "yes please", got.Text)
	assert.False(t, got.At.IsZero())

	assert.True(t, e.st.GetWorkerState("s1").Connected)
}

func TestBridgeCommands(t *testing.T) {
	e := newEnv(t)
	c := e.connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fw := &fakeWorker{}
	go fw.run(ctx, c, func(m Message) map[string]any {
		switch {
		case m.Type == CmdPerformAction:
			return map[string]any{"duration_ms": 20}
		case m.Type == CmdSetEmotion && m.str("name") == "angry":
			return map[string]any{"error": "unsupported emotion"}
		}
		return map[string]any{}
	})

	b := NewBridge("s1", e.reg, e.st, time.Second, nil)
	require.NoError(t, b.Speak(ctx, "hello"))

	start := time.Now()
	d, err := b.PerformAction(ctx, "wave")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, d)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.ErrorIs(t, b.SetEmotion(ctx, "angry"), ErrCommandFailed)
	assert.Equal(t, []string{CmdSpeak, CmdPerformAction, CmdSetEmotion}, fw.commands())
	assert.Equal(t, 3, e.st.GetWorkerState("s1").Commands)
}

func TestTurnPlaysThroughBridge(t *testing.T) {
	e := newEnv(t)
	c := e.connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fw := &fakeWorker{}
	go fw.run(ctx, c, nil)

	b := NewBridge("s1", e.reg, e.st, time.Second, nil)
	ex := turn.NewExecutor(b, b, b, 0, nil)
	require.NoError(t, ex.Run(ctx, "Hi <gesture>wave</gesture><emotion>happy</emotion>"))
	assert.Equal(t, []string{CmdMute, CmdSpeak, CmdPerformAction, CmdSetEmotion, CmdUnmute}, fw.commands())
}

func TestBridgeWithoutWorker(t *testing.T) {
	e := newEnv(t)
	b := NewBridge("s1", e.reg, e.st, time.Second, nil)
	assert.False(t, b.Ready())
	assert.ErrorIs(t, b.Speak(context.Background(), "hello"), ErrNoWorker)
}

func TestBridgeReadyFollowsWorker(t *testing.T) {
	e := newEnv(t)
	b := NewBridge("s1", e.reg, e.st, time.Second, nil)
	require.False(t, b.Ready())

	c := e.connect(t)
	assert.True(t, b.Ready())

	require.NoError(t, c.Close(ws.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return !b.Ready() }, 2*time.Second, 5*time.Millisecond)
}

func TestCommandTimesOutWithoutAck(t *testing.T) {
	e := newEnv(t)
	c := e.connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fw := &fakeWorker{}
	go fw.run(ctx, c, func(Message) map[string]any { return nil })

	b := NewBridge("s1", e.reg, e.st, 50*time.Millisecond, nil)
	err := b.MuteListening(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandFailsWhenWorkerLeaves(t *testing.T) {
	e := newEnv(t)
	c := e.connect(t)

	go func() {
		var m Message
		if err := wsjson.Read(context.Background(), c, &m); err == nil {
			_ = c.Close(ws.StatusGoingAway, "bye")
		}
	}()

	b := NewBridge("s1", e.reg, e.st, 5*time.Second, nil)
	assert.ErrorIs(t, b.Speak(context.Background(), "hello"), ErrWorkerGone)
	require.Eventually(t, func() bool { return !e.st.GetWorkerState("s1").Connected }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, e.reg.Connected("s1"))
}

func TestSecondWorkerReplacesFirst(t *testing.T) {
	e := newEnv(t)
	first := e.connect(t)
	firstWorker := e.reg.Get("s1")

	second, _, err := e.dial("s1", e.token(t))
	require.NoError(t, err)
	defer second.Close(ws.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		w := e.reg.Get("s1")
		return w != nil && w != firstWorker
	}, 2*time.Second, 5*time.Millisecond)

	_, _, err = first.Read(context.Background())
	assert.Error(t, err, "replaced connection is closed")
	assert.True(t, e.reg.Connected("s1"))

	var replaced bool
	for _, ev := range e.st.ListEvents("s1") {
		if ev.Type == "worker_replaced" {
			replaced = true
		}
	}
	assert.True(t, replaced)
}
