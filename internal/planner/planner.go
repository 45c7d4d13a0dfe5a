// Package planner fetches the scripted reply for a grammar match while the
// controller keeps listening, so the backend round-trip overlaps the debounce
// window.
package planner

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"talkml/agent/internal/grammar"
	"talkml/agent/internal/script"
)

// FetchFunc asks the script backend for the reply to a heard grammar.
type FetchFunc func(ctx context.Context, g grammar.ID) (script.Directive, error)

// Outcome describes what Consume found.
type Outcome int

const (
	NoReply  Outcome = iota // nothing was fetched this cycle
	Consumed                // reply handed over
	NotReady                // fetch still in flight
	Mismatch                // cached reply is for another grammar
)

func (o Outcome) String() string {
	switch o {
	case NoReply:
		return "no_reply"
	case Consumed:
		return "consumed"
	case NotReady:
		return "not_ready"
	case Mismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

type fetch struct {
	id        grammar.ID
	done      chan struct{}
	directive script.Directive
	err       error
}

// Planner holds at most one speculative reply per hearing cycle. Its methods
// are called from the control loop only; the fetch itself runs on its own
// goroutine and publishes its result by closing done.
type Planner struct {
	fetchFn   FetchFunc
	log       *zap.Logger
	cur       *fetch
	triggered bool
	wg        sync.WaitGroup
}

func New(fn FetchFunc, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{fetchFn: fn, log: log.Named("planner")}
}

// Trigger starts the cycle's fetch for id. It returns false when a fetch was
// already issued in this cycle.
func (p *Planner) Trigger(ctx context.Context, id grammar.ID) bool {
	if p.triggered {
		return false
	}
	p.triggered = true
	f := &fetch{id: id, done: make(chan struct{})}
	p.cur = f
	metricFetches.Inc()
	p.log.Debug("speculative fetch", zap.String("grammar", string(id)))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(f.done)
		f.directive, f.err = p.fetchFn(ctx, id)
	}()
	return true
}

// Triggered reports whether this cycle's fetch has been issued.
func (p *Planner) Triggered() bool { return p.triggered }

// Cached returns the grammar id of the live speculative reply.
func (p *Planner) Cached() (grammar.ID, bool) {
	if p.cur == nil {
		return "", false
	}
	return p.cur.id, true
}

// Ready reports whether the live fetch has completed.
func (p *Planner) Ready() bool {
	if p.cur == nil {
		return false
	}
	select {
	case <-p.cur.done:
		return true
	default:
		return false
	}
}

// Consume hands over the cached reply when it was fetched for id and has
// completed. A consumed reply is gone; a second call returns NoReply.
func (p *Planner) Consume(id grammar.ID) (script.Directive, Outcome) {
	if p.cur == nil {
		return script.Directive{}, NoReply
	}
	if p.cur.id != id {
		return script.Directive{}, Mismatch
	}
	if !p.Ready() {
		return script.Directive{}, NotReady
	}
	f := p.cur
	p.cur = nil
	metricHits.Inc()
	if f.err != nil {
		p.log.Warn("speculative reply failed", zap.String("grammar", string(id)), zap.Error(f.err))
	}
	return f.directive, Consumed
}

// Discard drops the cached reply without using it. An in-flight fetch runs
// to completion and its result is ignored.
func (p *Planner) Discard(reason string) {
	if p.cur == nil {
		return
	}
	metricDiscards.WithLabelValues(reason).Inc()
	p.log.Debug("speculative reply discarded", zap.String("grammar", string(p.cur.id)), zap.String("reason", reason))
	p.cur = nil
}

// Reset begins a new hearing cycle.
func (p *Planner) Reset() {
	p.Discard("new_cycle")
	p.triggered = false
}

// Wait blocks until every fetch goroutine has returned.
func (p *Planner) Wait() { p.wg.Wait() }
