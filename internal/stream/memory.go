package stream

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is a process-local Broker. It backs single-node deployments
// and tests; cross-process resume needs the Redis broker.
type MemoryBroker struct {
	mu      sync.Mutex
	streams map[string]*memStream
	doneTTL time.Duration
}

type memStream struct {
	state  State
	subs   map[int]chan Event
	nextID int
	doneAt time.Time
}

// NewMemoryBroker creates an in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		streams: make(map[string]*memStream),
		doneTTL: doneTTL,
	}
}

func (b *MemoryBroker) stream(streamID string) *memStream {
	st, ok := b.streams[streamID]
	if !ok {
		st = &memStream{state: StateUnknown, subs: make(map[int]chan Event)}
		b.streams[streamID] = st
	}
	return st
}

// Publish distributes an event to all current subscribers of streamID.
func (b *MemoryBroker) Publish(ctx context.Context, streamID string, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[streamID]
	if !ok {
		return nil
	}
	for _, ch := range st.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than stall the producer.
		}
	}
	return nil
}

// Subscribe returns events for streamID from this point forward.
func (b *MemoryBroker) Subscribe(ctx context.Context, streamID string) (<-chan Event, func(), error) {
	b.mu.Lock()
	st := b.stream(streamID)
	id := st.nextID
	st.nextID++
	ch := make(chan Event, 64)
	st.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := st.subs[id]; ok {
			delete(st.subs, id)
			close(cur)
		}
	}
	return ch, cancel, nil
}

// MarkActive records that a producer is running for streamID.
func (b *MemoryBroker) MarkActive(ctx context.Context, streamID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream(streamID).state = StateActive
	return nil
}

// MarkDone replaces the active marker with a short-lived done marker.
func (b *MemoryBroker) MarkDone(ctx context.Context, streamID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stream(streamID)
	st.state = StateDone
	st.doneAt = time.Now()
	return nil
}

// StreamState reports the marker state for streamID. Done markers expire
// after the retention window, after which the id reads as unknown.
func (b *MemoryBroker) StreamState(ctx context.Context, streamID string) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[streamID]
	if !ok {
		return StateUnknown, nil
	}
	if st.state == StateDone && time.Since(st.doneAt) > b.doneTTL {
		if len(st.subs) == 0 {
			delete(b.streams, streamID)
		}
		return StateUnknown, nil
	}
	return st.state, nil
}
