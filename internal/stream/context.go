package stream

import (
	"context"

	"github.com/rs/zerolog"
)

// ProducerFunc lazily starts a generation and returns its event sequence.
// The returned channel must be closed when the generation finishes.
type ProducerFunc func(ctx context.Context) <-chan Event

// Context fans one producer's output to any number of subscribers over a
// Broker, including subscribers that attach after emission has begun.
//
// A nil *Context is the degraded mode: resume unsupported, callers stream
// one-shot instead.
type Context struct {
	broker Broker
	logger zerolog.Logger
}

// NewContext creates a resumable stream context over broker.
func NewContext(broker Broker, logger zerolog.Logger) *Context {
	return &Context{broker: broker, logger: logger}
}

// Begin registers streamID as active, starts draining the producer, and
// returns the originating client's subscription. Distribution continues to
// completion even if the caller's request context is cancelled: ctx here only
// gates delivery on the returned channel, never the producer.
func (c *Context) Begin(ctx context.Context, streamID string, produce ProducerFunc) (<-chan Event, error) {
	if err := c.broker.MarkActive(ctx, streamID); err != nil {
		return nil, err
	}

	// The producer outlives the request: a disconnect must never lose a
	// completed answer.
	prodCtx := context.WithoutCancel(ctx)
	src := produce(prodCtx)

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		clientGone := false
		for ev := range src {
			if err := c.broker.Publish(prodCtx, streamID, ev); err != nil {
				c.logger.Warn().Err(err).Str("stream_id", streamID).Msg("stream publish failed")
			}
			if clientGone {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				clientGone = true
			}
		}

		if err := c.broker.MarkDone(prodCtx, streamID); err != nil {
			c.logger.Warn().Err(err).Str("stream_id", streamID).Msg("stream done marker failed")
		}
		if err := c.broker.Publish(prodCtx, streamID, Terminal()); err != nil {
			c.logger.Warn().Err(err).Str("stream_id", streamID).Msg("terminal publish failed")
		}
	}()

	return out, nil
}

// Attach subscribes to an in-flight stream from this point forward. For a
// recently finished stream it returns a one-event sequence holding the
// terminal marker. Unknown or expired ids return ErrUnknownStream.
func (c *Context) Attach(ctx context.Context, streamID string) (<-chan Event, error) {
	// Subscribe before inspecting state so no event can slip between the
	// check and the subscription.
	sub, cancel, err := c.broker.Subscribe(ctx, streamID)
	if err != nil {
		return nil, err
	}

	state, err := c.broker.StreamState(ctx, streamID)
	if err != nil {
		cancel()
		return nil, err
	}

	switch state {
	case StateUnknown:
		cancel()
		return nil, ErrUnknownStream
	case StateDone:
		cancel()
		out := make(chan Event, 1)
		out <- Terminal()
		close(out)
		return out, nil
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Type == TypeFinish {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
