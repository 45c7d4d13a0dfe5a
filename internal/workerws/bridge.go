package workerws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket/wsjson"

	"talkml/agent/internal/store"
)

var (
	ErrNoWorker      = errors.New("no speech worker connected")
	ErrWorkerGone    = errors.New("speech worker disconnected")
	ErrCommandFailed = errors.New("speech worker reported failure")
)

// Bridge drives the session's worker. It implements the voice, body and
// listening collaborators of a turn.
type Bridge struct {
	sid     string
	reg     *Registry
	store   *store.Store
	timeout time.Duration
	log     *zap.Logger
}

// NewBridge returns a bridge whose commands fail if the worker has not
// acknowledged them within timeout.
func NewBridge(sessionID string, reg *Registry, st *store.Store, timeout time.Duration, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{sid: sessionID, reg: reg, store: st, timeout: timeout, log: log.Named("bridge")}
}

// Ready reports whether a worker is attached to receive commands.
func (b *Bridge) Ready() bool { return b.reg.Connected(b.sid) }

func (b *Bridge) Speak(ctx context.Context, text string) error {
	_, err := b.command(ctx, CmdSpeak, map[string]any{"text": text})
	return err
}

// PerformAction starts a gesture and holds until the duration the worker
// declared for it has passed.
func (b *Bridge) PerformAction(ctx context.Context, name string) (time.Duration, error) {
	ack, err := b.command(ctx, CmdPerformAction, map[string]any{"name": name})
	if err != nil {
		return 0, err
	}
	d := time.Duration(ack.num("duration_ms")) * time.Millisecond
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return d, ctx.Err()
		}
	}
	return d, nil
}

func (b *Bridge) SetEmotion(ctx context.Context, name string) error {
	_, err := b.command(ctx, CmdSetEmotion, map[string]any{"name": name})
	return err
}

func (b *Bridge) MuteListening(ctx context.Context) error {
	_, err := b.command(ctx, CmdMute, nil)
	return err
}

func (b *Bridge) UnmuteListening(ctx context.Context) error {
	_, err := b.command(ctx, CmdUnmute, nil)
	return err
}

// command sends one command and waits for its ack.
func (b *Bridge) command(ctx context.Context, typ string, payload map[string]any) (Message, error) {
	wk := b.reg.Get(b.sid)
	if wk == nil {
		metricCommands.WithLabelValues(typ, "no_worker").Inc()
		return Message{}, ErrNoWorker
	}

	id := uuid.NewString()
	acks := wk.await(id)
	defer wk.forget(id)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	msg := Message{
		Type:      typ,
		TsMs:      time.Now().UnixMilli(),
		SessionID: b.sid,
		Seq:       wk.seq.Add(1),
		CommandID: id,
		Payload:   payload,
	}
	if err := wsjson.Write(ctx, wk.conn, msg); err != nil {
		metricCommands.WithLabelValues(typ, "failed").Inc()
		return Message{}, fmt.Errorf("send %s: %w", typ, err)
	}
	b.store.CountWorkerCommand(b.sid)
	b.log.Debug("command sent", zap.String("type", typ), zap.String("command_id", id))

	select {
	case ack := <-acks:
		if e := ack.str("error"); e != "" {
			metricCommands.WithLabelValues(typ, "failed").Inc()
			return ack, fmt.Errorf("%s: %w: %s", typ, ErrCommandFailed, e)
		}
		metricCommands.WithLabelValues(typ, "ok").Inc()
		return ack, nil
	case <-wk.done:
		metricCommands.WithLabelValues(typ, "gone").Inc()
		return Message{}, ErrWorkerGone
	case <-ctx.Done():
		metricCommands.WithLabelValues(typ, "timeout").Inc()
		return Message{}, fmt.Errorf("await %s ack: %w", typ, ctx.Err())
	}
}
