// Package script talks to the remote TalkML dialogue script backend.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"talkml/agent/internal/grammar"
)

var (
	ErrStatus    = errors.New("script backend returned non-200 status")
	ErrMalformed = errors.New("script backend reply is malformed")
)

// Client is the synchronous surface the dialogue controller uses. Action and
// Start always return a usable Directive: on failure it is the empty one and
// the error says why.
type Client interface {
	Upload(ctx context.Context, tkml string) error
	Start(ctx context.Context) (Directive, error)
	Action(ctx context.Context, kind Action, g grammar.ID) (Directive, error)
}

type HTTPClient struct {
	http       *http.Client
	url        string
	version    string
	dialogueID string
	sessionID  string
	log        *zap.Logger
}

type Options struct {
	URL        string
	Version    string
	DialogueID string
	SessionID  string
	Timeout    time.Duration
	Logger     *zap.Logger
}

func NewClient(o Options) *HTTPClient {
	if o.Version == "" {
		o.Version = "1.0"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &HTTPClient{
		http:       &http.Client{Timeout: o.Timeout},
		url:        o.URL,
		version:    o.Version,
		dialogueID: o.DialogueID,
		sessionID:  o.SessionID,
		log:        o.Logger.Named("script"),
	}
}

func (c *HTTPClient) Upload(ctx context.Context, tkml string) error {
	_, err := c.send(ctx, request{Action: ActionUpload, TKML: tkml}, false)
	return err
}

func (c *HTTPClient) Start(ctx context.Context) (Directive, error) {
	return c.send(ctx, request{Action: ActionStart}, true)
}

func (c *HTTPClient) Action(ctx context.Context, kind Action, g grammar.ID) (Directive, error) {
	return c.send(ctx, request{Action: kind, Grammar: string(g)}, true)
}

func (c *HTTPClient) send(ctx context.Context, body request, decode bool) (Directive, error) {
	body.Version = c.version
	start := time.Now()
	d, err := c.do(ctx, body, decode)
	metricCallLatency.WithLabelValues(body.Action.String()).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricCalls.WithLabelValues(body.Action.String(), "error").Inc()
		c.log.Warn("script call failed", zap.Stringer("action", body.Action), zap.String("grammar", body.Grammar), zap.Error(err))
		return Directive{}, fmt.Errorf("script %s: %w", body.Action, err)
	}
	metricCalls.WithLabelValues(body.Action.String(), "ok").Inc()
	c.log.Debug("script call",
		zap.Stringer("action", body.Action),
		zap.String("grammar", body.Grammar),
		zap.String("say", d.Say),
		zap.Stringer("g1", d.Expect.Primary),
		zap.Stringer("g2", d.Expect.Secondary))
	return d, nil
}

func (c *HTTPClient) do(ctx context.Context, body request, decode bool) (Directive, error) {
	var out bytes.Buffer
	if err := json.NewEncoder(&out).Encode(body); err != nil {
		return Directive{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &out)
	if err != nil {
		return Directive{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DId", "proseco."+c.dialogueID)
	req.Header.Set("SId", "proseco."+c.sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return Directive{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Directive{}, fmt.Errorf("%w: %s: %s", ErrStatus, resp.Status, string(b))
	}
	if !decode {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Directive{}, nil
	}
	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Directive{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r.directive(), nil
}
