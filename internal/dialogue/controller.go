// Package dialogue runs the turn-taking state machine: it decides when the
// robot talks, when it listens, which grammar the user's answer satisfied and
// when that answer is final.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"talkml/agent/internal/floor"
	"talkml/agent/internal/grammar"
	"talkml/agent/internal/mailbox"
	"talkml/agent/internal/planner"
	"talkml/agent/internal/script"
	"talkml/agent/internal/store"
)

// TurnRunner plays one directive's speak text.
type TurnRunner interface {
	Run(ctx context.Context, say string) error
}

type Options struct {
	SessionID string
	Timing    Timing
	Grammars  *grammar.Set
	Script    script.Client
	Turns     TurnRunner
	Inbox     *mailbox.Inbox
	Store     *store.Store
	Logger    *zap.Logger
	// Ready reports whether turns can be played. While it returns false the
	// controller holds its next directive in WaitToTalk or Talking. Nil means
	// always ready.
	Ready func() bool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Controller struct {
	sid      string
	timing   Timing
	grammars *grammar.Set
	script   script.Client
	turns    TurnRunner
	inbox    *mailbox.Inbox
	store    *store.Store
	log      *zap.Logger
	ready    func() bool
	now      func() time.Time

	floor   *floor.Manager
	planner *planner.Planner

	s       session
	snap    atomic.Pointer[Snapshot]
	running atomic.Bool
}

func New(o Options) *Controller {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Inbox == nil {
		o.Inbox = mailbox.New()
	}
	if o.Store == nil {
		o.Store = store.New()
	}
	c := &Controller{
		sid:      o.SessionID,
		timing:   o.Timing,
		grammars: o.Grammars,
		script:   o.Script,
		turns:    o.Turns,
		inbox:    o.Inbox,
		store:    o.Store,
		log:      o.Logger.Named("dialogue"),
		ready:    o.Ready,
		now:      o.Clock,
		floor:    floor.New(),
	}
	c.planner = planner.New(func(ctx context.Context, g grammar.ID) (script.Directive, error) {
		return c.script.Action(ctx, script.ActionHeard, g)
	}, o.Logger)
	c.s.since = c.now()
	c.publish()
	return c
}

// Bootstrap uploads the dialogue script and starts it. The start directive is
// applied by the first tick. A failed upload is fatal; a failed start leaves
// the controller halted until the user speaks.
func (c *Controller) Bootstrap(ctx context.Context, tkml string) error {
	if err := c.script.Upload(ctx, tkml); err != nil {
		return fmt.Errorf("upload script: %w", err)
	}
	c.event("script_uploaded", nil)
	d, err := c.script.Start(ctx)
	if err != nil {
		c.log.Warn("start dialogue failed", zap.Error(err))
		c.event("script_failed", map[string]any{"action": script.ActionStart.String(), "error": err.Error()})
	}
	c.s.pendingReply = &d
	return nil
}

// Run ticks the state machine until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)
	defer c.planner.Wait()

	t := time.NewTicker(c.timing.Tick)
	defer t.Stop()
	c.log.Info("dialogue loop started", zap.Duration("tick", c.timing.Tick))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("dialogue loop stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-t.C:
			c.Tick(ctx)
		}
	}
}

// Running reports whether Run is active.
func (c *Controller) Running() bool { return c.running.Load() }

// Inbox is where collaborators deliver utterances and activity reports.
func (c *Controller) Inbox() *mailbox.Inbox { return c.inbox }

// Snapshot returns the state published by the latest tick.
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// Tick advances the state machine once. It must only be called from the
// goroutine that owns the controller.
func (c *Controller) Tick(ctx context.Context) {
	now := c.now()
	switch c.s.state {
	case WaitToTalk:
		if c.audience() {
			c.waitToTalk(ctx, now)
		}
	case Talking:
		if c.audience() {
			c.talking(ctx)
		}
	case WaitToHear:
		c.waitToHear(ctx, now)
	case Hearing:
		c.hearing(ctx, now)
	case Heard:
		c.heard(now)
	}
	c.publish()
}

// audience reports whether a turn can be played now. Nothing is fetched or
// spoken without one, so the script does not run ahead of the listener.
func (c *Controller) audience() bool {
	if c.ready == nil || c.ready() {
		if c.s.waiting {
			c.s.waiting = false
			c.log.Info("speech worker available; resuming")
			c.event("worker_ready", nil)
		}
		return true
	}
	if !c.s.waiting {
		c.s.waiting = true
		c.log.Info("waiting for a speech worker")
		c.event("waiting_for_worker", map[string]any{"state": c.s.state.String()})
	}
	return false
}

func (c *Controller) waitToTalk(ctx context.Context, now time.Time) {
	if c.s.halted {
		u, ok := c.inbox.TakeUtterance()
		if !ok || u.At.Before(c.s.haltedAt) {
			return
		}
		c.s.halted = false
		gaugeHalted.Set(0)
		c.log.Info("dialogue resumed by utterance", zap.String("text", u.Text))
		c.event("dialogue_resumed", map[string]any{"text": u.Text})
	}

	var d script.Directive
	switch {
	case c.s.pendingReply != nil:
		d = *c.s.pendingReply
		c.s.pendingReply = nil
	case c.s.pendingReq != nil:
		req := *c.s.pendingReq
		c.s.pendingReq = nil
		d = c.call(ctx, req)
	default:
		d = c.call(ctx, request{action: script.ActionGetSayNext})
	}
	c.apply(c.now(), d)
}

// apply replaces the expectation wholesale and routes on the directive.
func (c *Controller) apply(now time.Time, d script.Directive) {
	c.s.expect = d.Expect
	c.warnUnknown(d.Expect.Primary)
	c.warnUnknown(d.Expect.Secondary)
	c.log.Debug("directive",
		zap.String("say", d.Say),
		zap.Stringer("g1", d.Expect.Primary),
		zap.Stringer("g2", d.Expect.Secondary))

	switch {
	case d.Empty():
		c.s.halted = true
		c.s.haltedAt = now
		gaugeHalted.Set(1)
		c.log.Info("script ended the dialogue; waiting for the user")
		c.event("dialogue_halted", nil)
		c.setState(WaitToTalk, now)
	case d.Say != "":
		c.s.say = d.Say
		c.setState(Talking, now)
	default:
		c.enterWaitToHear(now)
	}
}

// warnUnknown flags grammar ids the script expects but no rule defines. Such
// an alternative can never match.
func (c *Controller) warnUnknown(slot grammar.Slot) {
	for _, id := range slot {
		if !c.grammars.Has(id) {
			c.log.Warn("directive names an undefined grammar", zap.String("grammar", string(id)))
			c.event("unknown_grammar", map[string]any{"grammar": string(id)})
		}
	}
}

func (c *Controller) talking(ctx context.Context) {
	say := c.s.say
	c.s.say = ""
	c.floor.OnTurnStarted(c.now())
	err := c.turns.Run(ctx, say)
	end := c.now()
	c.floor.OnTurnFinished(end)
	if err != nil {
		metricTurnFailures.Inc()
		c.log.Warn("turn failed", zap.Error(err))
		c.event("turn_failed", map[string]any{"error": err.Error()})
	} else {
		c.event("turn_played", map[string]any{"say": say})
	}

	if c.s.expect.Empty() {
		c.setState(WaitToTalk, end)
		return
	}
	c.enterWaitToHear(end)
}

// enterWaitToHear opens a new hearing cycle.
func (c *Controller) enterWaitToHear(now time.Time) {
	c.planner.Reset()
	c.floor.Reset(now)
	c.s.cycle++
	c.s.cycleStart = now
	c.s.text = ""
	c.s.heardID = ""
	c.s.last = grammar.Resolution{}
	metricHearingCycles.Inc()
	c.setState(WaitToHear, now)
}

func (c *Controller) waitToHear(ctx context.Context, now time.Time) {
	if c.intake(now) {
		c.setState(Hearing, now)
		c.evaluate(ctx)
		return
	}
	if now.Sub(c.s.since) >= c.timing.NoInput {
		metricTimeouts.WithLabelValues("no_input").Inc()
		c.log.Debug("no input", zap.Duration("waited", now.Sub(c.s.since)))
		c.s.pendingReq = &request{action: script.ActionNoInput}
		c.setState(WaitToTalk, now)
	}
}

func (c *Controller) hearing(ctx context.Context, now time.Time) {
	c.intake(now)
	res := c.evaluate(ctx)

	if res.PrimaryOK && c.floor.QuietFor(now, c.timing.HeardStability) {
		c.s.heardID = res.Primary
		c.log.Info("heard", zap.String("grammar", string(res.Primary)), zap.String("text", c.s.text))
		c.event("heard", map[string]any{"grammar": string(res.Primary), "text": c.s.text})
		c.setState(Heard, now)
		c.heard(now)
		return
	}

	// The quiet window follows speech activity; the hearing cap is absolute.
	reason := ""
	switch {
	case !c.floor.UserSpeaking() && now.Sub(c.floor.LastActivity()) >= c.timing.NoMatch:
		reason = "no_match"
	case now.Sub(c.s.since) >= c.timing.MaxHearing:
		reason = "max_hearing"
	}
	if reason != "" {
		metricTimeouts.WithLabelValues(reason).Inc()
		c.planner.Discard(reason + "_timeout")
		req := request{action: script.ActionNoMatch}
		if res.SecondaryOK {
			req = request{action: script.ActionHeard, grammar: res.Secondary}
		}
		c.log.Info("no stable match",
			zap.String("reason", reason),
			zap.String("text", c.s.text),
			zap.Stringer("action", req.action),
			zap.String("grammar", string(req.grammar)))
		c.s.pendingReq = &req
		c.s.text = ""
		c.setState(WaitToTalk, now)
	}
}

// heard commits the primary match, preferring the speculative reply.
func (c *Controller) heard(now time.Time) {
	d, out := c.planner.Consume(c.s.heardID)
	switch out {
	case planner.NotReady:
		return
	case planner.Consumed:
		metricCommits.WithLabelValues("speculative").Inc()
		c.s.pendingReply = &d
	default:
		// The reply on hand was fetched for another alternative.
		metricCommits.WithLabelValues("fresh").Inc()
		c.planner.Discard(out.String())
		c.s.pendingReq = &request{action: script.ActionHeard, grammar: c.s.heardID}
	}
	c.s.expect = grammar.Expectation{}
	c.s.text = ""
	c.setState(WaitToTalk, now)
}

// intake drains the inbox into the floor and the cycle's text. It reports
// whether any user input arrived.
func (c *Controller) intake(now time.Time) bool {
	arrived := false
	if a, ok := c.inbox.Activity(); ok {
		if d := c.floor.OnActivity(a, now); d.BeginHearing {
			arrived = true
		}
	}
	if u, ok := c.inbox.TakeUtterance(); ok {
		if u.At.Before(c.s.cycleStart) {
			c.log.Debug("dropping stale utterance", zap.String("text", u.Text))
		} else if text := strings.TrimSpace(u.Text); text != "" {
			c.floor.OnUtterance(now)
			if c.s.text == "" {
				c.s.text = text
			} else {
				c.s.text += " " + text
			}
			arrived = true
		}
	}
	c.floor.Tick(now)
	return arrived
}

// evaluate re-resolves the expectation against the cycle's text and starts
// the speculative fetch on the first primary match.
func (c *Controller) evaluate(ctx context.Context) grammar.Resolution {
	res := c.grammars.Evaluate(c.s.expect, c.s.text)
	c.s.last = res
	if res.PrimaryOK && c.planner.Trigger(ctx, res.Primary) {
		c.event("speculative_fetch", map[string]any{"grammar": string(res.Primary)})
	}
	return res
}

func (c *Controller) call(ctx context.Context, req request) script.Directive {
	d, err := c.script.Action(ctx, req.action, req.grammar)
	payload := map[string]any{"action": req.action.String()}
	if req.grammar != "" {
		payload["grammar"] = string(req.grammar)
	}
	if err != nil {
		payload["error"] = err.Error()
		c.log.Warn("script call failed", zap.Stringer("action", req.action), zap.Error(err))
		c.event("script_failed", payload)
		return script.Directive{}
	}
	c.event("script_call", payload)
	return d
}

func (c *Controller) setState(to State, now time.Time) {
	from := c.s.state
	c.s.since = now
	if from == to {
		return
	}
	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	c.log.Debug("state", zap.Stringer("from", from), zap.Stringer("to", to))
	c.event("state_changed", map[string]any{"from": from.String(), "to": to.String()})
	c.s.state = to
}

func (c *Controller) event(typ string, payload map[string]any) {
	c.store.AppendEvent(c.sid, typ, payload)
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:     c.s.state.String(),
		Since:     c.s.since,
		Primary:   c.s.expect.Primary.String(),
		Secondary: c.s.expect.Secondary.String(),
		Text:      c.s.text,
		Cycle:     c.s.cycle,
		Halted:    c.s.halted,
		Waiting:   c.s.waiting,
	}
	if id, ok := c.s.last.Best(); ok {
		snap.Match = string(id)
	}
	if id, ok := c.planner.Cached(); ok {
		snap.Speculative = string(id)
	}
	c.snap.Store(&snap)
}
