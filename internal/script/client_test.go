package script

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkml/agent/internal/grammar"
)

func newTestClient(url string) *HTTPClient {
	return NewClient(Options{URL: url, DialogueID: "d1", SessionID: "s1", Timeout: 2 * time.Second})
}

func TestActionSendsRequestAndParsesDirective(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "proseco.d1", r.Header.Get("DId"))
		assert.Equal(t, "proseco.s1", r.Header.Get("SId"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"sayThis":"Hello <gesture>wave</gesture>","g1":"g_yes|g_ok","g2":null}`))
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Action(context.Background(), ActionHeard, "g_yes")
	require.NoError(t, err)
	assert.Equal(t, request{Version: "1.0", Action: ActionHeard, Grammar: "g_yes"}, got)
	assert.Equal(t, "Hello <gesture>wave</gesture>", d.Say)
	assert.Equal(t, grammar.Slot{"g_yes", "g_ok"}, d.Expect.Primary)
	assert.Nil(t, d.Expect.Secondary)
	assert.False(t, d.Empty())
}

func TestNullReplyIsEmptyDirective(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sayThis":null,"g1":null,"g2":null}`))
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Action(context.Background(), ActionGetSayNext, "")
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestStringifiedNoneIsNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sayThis":"None","g1":"","g2":"g_no"}`))
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", d.Say)
	assert.True(t, d.Expect.Primary.Empty())
	assert.Equal(t, grammar.Slot{"g_no"}, d.Expect.Secondary)
}

func TestNon200MapsToEmptyDirective(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Action(context.Background(), ActionNoInput, "")
	require.ErrorIs(t, err, ErrStatus)
	assert.True(t, d.Empty())
}

func TestMalformedBodyMapsToEmptyDirective(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Action(context.Background(), ActionNoMatch, "")
	require.ErrorIs(t, err, ErrMalformed)
	assert.True(t, d.Empty())
}

func TestUnreachableMapsToEmptyDirective(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := newTestClient(url).Start(context.Background())
	require.Error(t, err)
	assert.True(t, d.Empty())
}

func TestUploadSendsScript(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).Upload(context.Background(), "<tkml/>"))
	assert.Equal(t, ActionUpload, got.Action)
	assert.Equal(t, "<tkml/>", got.TKML)
	assert.Empty(t, got.Grammar)
}
