// Package stream implements the resumable stream context: it decouples "a
// generation is running" from "a particular HTTP response is attached to it",
// so a client can disconnect and later re-attach to the same generation
// without restarting the model call.
package stream

import (
	"context"
	"encoding/json"
	"errors"
)

// Event is one unit of stream output. Type mirrors the wire event name; Data
// carries the JSON payload, if any.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TypeFinish is the terminal event type. The context appends it when a
// producer completes, and attach pipes close after forwarding it.
const TypeFinish = "finish"

// Terminal returns the terminal marker event.
func Terminal() Event { return Event{Type: TypeFinish} }

// State describes what the broker knows about a stream id.
type State int

const (
	StateUnknown State = iota // never seen, or markers expired
	StateActive               // producer still running
	StateDone                 // finished recently, terminal marker retained
)

// ErrUnknownStream is returned by Attach for ids the broker has no record of.
var ErrUnknownStream = errors.New("stream: unknown stream id")

// Broker is the pub/sub backing store for stream fan-out. Subscribers receive
// events published after they subscribe; no replay. Markers give late
// subscribers an immediate answer about finished or unknown streams.
type Broker interface {
	// Publish distributes an event to all current subscribers of streamID.
	Publish(ctx context.Context, streamID string, ev Event) error

	// Subscribe returns a channel of events for streamID from this point
	// forward, plus a cancel function releasing the subscription.
	Subscribe(ctx context.Context, streamID string) (<-chan Event, func(), error)

	// MarkActive records that a producer is running for streamID.
	MarkActive(ctx context.Context, streamID string) error

	// MarkDone replaces the active marker with a short-lived done marker.
	MarkDone(ctx context.Context, streamID string) error

	// StreamState reports the marker state for streamID.
	StreamState(ctx context.Context, streamID string) (State, error)
}
