package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkml/agent/internal/dialogue"
	"talkml/agent/internal/mailbox"
	"talkml/agent/internal/store"
	"talkml/agent/internal/types"
)

type mockDialogue struct {
	inbox *mailbox.Inbox
	snap  dialogue.Snapshot
}

func (m *mockDialogue) Snapshot() dialogue.Snapshot { return m.snap }
func (m *mockDialogue) Inbox() *mailbox.Inbox       { return m.inbox }

func newServer(t *testing.T) (*httptest.Server, *mockDialogue, *store.Store) {
	t.Helper()
	st := store.New()
	require.NoError(t, st.CreateSession(&types.Session{ID: "s1", Status: "running"}))
	dlg := &mockDialogue{inbox: mailbox.New(), snap: dialogue.Snapshot{State: "wait_to_hear", Primary: "g_yes", Cycle: 3}}
	srv := httptest.NewServer(NewRouter(NewHandlers("s1", st, dlg), nil))
	t.Cleanup(srv.Close)
	return srv, dlg, st
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestState(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap dialogue.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "wait_to_hear", snap.State)
	assert.Equal(t, "g_yes", snap.Primary)
	assert.EqualValues(t, 3, snap.Cycle)
}

func TestDebugUtteranceReachesInbox(t *testing.T) {
	srv, dlg, st := newServer(t)
	resp, err := http.Post(srv.URL+"/debug/utterance", "application/json", strings.NewReader(`{"text":" yes "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	u, ok := dlg.inbox.TakeUtterance()
	require.True(t, ok)
	assert.Equal(t, "yes", u.Text)

	events := st.ListEvents("s1")
	require.NotEmpty(t, events)
	assert.Equal(t, "debug_utterance", events[len(events)-1].Type)
}

func TestDebugActivity(t *testing.T) {
	srv, dlg, _ := newServer(t)
	resp, err := http.Post(srv.URL+"/debug/activity", "application/json", strings.NewReader(`{"started":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	a, ok := dlg.inbox.Activity()
	require.True(t, ok)
	assert.True(t, a.Started)
}

func TestDebugRejectsBadInput(t *testing.T) {
	srv, dlg, _ := newServer(t)
	for path, body := range map[string]string{
		"/debug/utterance": `{"text":"  "}`,
		"/debug/activity":  `{}`,
	} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
	_, ok := dlg.inbox.TakeUtterance()
	assert.False(t, ok)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/debug/utterance")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/state", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEvents(t *testing.T) {
	srv, _, st := newServer(t)
	st.AppendEvent("s1", "state_changed", map[string]any{"from": "talking", "to": "wait_to_hear"})
	st.SetWorkerConnected("s1", true, time.Now())
	st.CountWorkerCommand("s1")
	st.CountWorkerCommand("s1")

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		SessionID string            `json:"session_id"`
		Worker    store.WorkerState `json:"worker"`
		Events    []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "s1", out.SessionID)
	assert.True(t, out.Worker.Connected)
	assert.Equal(t, 2, out.Worker.Commands)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "state_changed", out.Events[0].Type)
}

func TestMetricsExposed(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
