// Package turn plays one scripted turn: speech interleaved with gestures and
// emotion changes, with listening muted for the duration.
package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Voice synthesises speech. Speak returns once the text has been played.
type Voice interface {
	Speak(ctx context.Context, text string) error
}

// Body drives nonverbal behaviour. PerformAction blocks for the gesture's
// declared duration and reports it.
type Body interface {
	PerformAction(ctx context.Context, name string) (time.Duration, error)
	SetEmotion(ctx context.Context, name string) error
}

// Listening gates the speech recognition pipeline.
type Listening interface {
	MuteListening(ctx context.Context) error
	UnmuteListening(ctx context.Context) error
}

type Executor struct {
	voice  Voice
	body   Body
	listen Listening
	settle time.Duration
	log    *zap.Logger
}

// NewExecutor builds an executor. settle is waited after muting and before
// unmuting so the recogniser does not pick up the tail of our own voice.
func NewExecutor(v Voice, b Body, l Listening, settle time.Duration, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{voice: v, body: b, listen: l, settle: settle, log: log.Named("turn")}
}

// Run plays say. Empty turns do nothing. Listening is unmuted on every path
// once it was muted, and collaborator failures are returned.
func (e *Executor) Run(ctx context.Context, say string) (err error) {
	segs := Parse(say)
	if len(segs) == 0 {
		return nil
	}

	muteErr := e.listen.MuteListening(ctx)
	defer func() {
		if muteErr == nil {
			sleep(ctx, e.settle)
		}
		// Use a fresh context: a cancelled loop must still reopen the microphone.
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if uerr := e.listen.UnmuteListening(uctx); uerr != nil {
			err = errors.Join(err, fmt.Errorf("unmute listening: %w", uerr))
		}
	}()
	if muteErr != nil {
		return fmt.Errorf("mute listening: %w", muteErr)
	}
	sleep(ctx, e.settle)

	for _, seg := range segs {
		metricSegments.WithLabelValues(seg.Kind.String()).Inc()
		if err := e.play(ctx, seg); err != nil {
			metricTurnErrors.Inc()
			return fmt.Errorf("%s %q: %w", seg.Kind, seg.Value, err)
		}
	}
	return nil
}

func (e *Executor) play(ctx context.Context, seg Segment) error {
	switch seg.Kind {
	case Speech:
		e.log.Debug("speak", zap.String("text", seg.Value))
		return e.voice.Speak(ctx, seg.Value)
	case Gesture:
		d, err := e.body.PerformAction(ctx, seg.Value)
		e.log.Debug("gesture", zap.String("name", seg.Value), zap.Duration("duration", d))
		return err
	case Emotion:
		e.log.Debug("emotion", zap.String("name", seg.Value))
		return e.body.SetEmotion(ctx, seg.Value)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
