package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// activeTTL bounds how long a stream can be marked live. Refreshing is
	// not needed: generations are minutes at most.
	activeTTL = 10 * time.Minute
	// doneTTL is the retention window for the terminal marker. Long enough
	// to cover the resume race, short enough to keep keyspace clean.
	doneTTL = 60 * time.Second
)

// RedisBroker distributes stream events over Redis pub/sub and tracks stream
// state in short-lived keys.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a broker on an existing Redis connection.
func NewRedisBroker(ctx context.Context, redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBroker{client: client}, nil
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// eventsChannel returns the pub/sub channel name for a stream.
func eventsChannel(streamID string) string {
	return fmt.Sprintf("stream:%s:events", streamID)
}

// stateKey returns the marker key for a stream.
func stateKey(streamID string) string {
	return fmt.Sprintf("stream:%s:state", streamID)
}

// Publish distributes an event to all current subscribers of streamID.
func (b *RedisBroker) Publish(ctx context.Context, streamID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, eventsChannel(streamID), data).Err()
}

// Subscribe returns events for streamID from this point forward.
func (b *RedisBroker) Subscribe(ctx context.Context, streamID string) (<-chan Event, func(), error) {
	sub := b.client.Subscribe(ctx, eventsChannel(streamID))

	// Force the subscription onto the wire before returning, so callers can
	// check markers afterwards without a gap.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, err
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { sub.Close() }
	return out, cancel, nil
}

// MarkActive records that a producer is running for streamID.
func (b *RedisBroker) MarkActive(ctx context.Context, streamID string) error {
	return b.client.Set(ctx, stateKey(streamID), "active", activeTTL).Err()
}

// MarkDone replaces the active marker with a short-lived done marker.
func (b *RedisBroker) MarkDone(ctx context.Context, streamID string) error {
	return b.client.Set(ctx, stateKey(streamID), "done", doneTTL).Err()
}

// StreamState reports the marker state for streamID.
func (b *RedisBroker) StreamState(ctx context.Context, streamID string) (State, error) {
	val, err := b.client.Get(ctx, stateKey(streamID)).Result()
	if err == redis.Nil {
		return StateUnknown, nil
	}
	if err != nil {
		return StateUnknown, err
	}
	if val == "done" {
		return StateDone, nil
	}
	return StateActive, nil
}
