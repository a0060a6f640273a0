// Package gate enforces the embedded surface's token budget. Counters are
// process-local and in-memory on purpose: the embed is a low-volume demo
// surface and budgets reset on restart. A TTL sweep bounds key cardinality.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/agasthyaps/nisa-labs-sub000/internal/prompts"
)

// Caps holds the per-mode token caps.
type Caps struct {
	General int
	CSV     int
	Image   int
}

// Decision is the outcome of a pre-turn budget check.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Cap       int  `json:"cap"`
	Remaining int  `json:"remaining"`
}

type entry struct {
	used    int
	touched time.Time
}

// Gate tracks cumulative token consumption per embedded-conversation id.
type Gate struct {
	mu    sync.Mutex
	caps  Caps
	used  map[string]*entry
	ttl   time.Duration
}

// New creates a gate with the given caps and a 24h counter TTL.
func New(caps Caps) *Gate {
	return &Gate{
		caps: caps,
		used: make(map[string]*entry),
		ttl:  24 * time.Hour,
	}
}

func (g *Gate) capFor(mode string) int {
	switch mode {
	case prompts.ModeCSV:
		return g.caps.CSV
	case prompts.ModeImage:
		return g.caps.Image
	default:
		return g.caps.General
	}
}

// Check runs the pre-turn budget check for an embedded conversation. The
// check happens before the model call, so usage can exceed the cap by at most
// one turn's worth of overage.
func (g *Gate) Check(conversationID, mode string) Decision {
	cap := g.capFor(mode)

	g.mu.Lock()
	defer g.mu.Unlock()

	used := 0
	if e, ok := g.used[conversationID]; ok {
		used = e.used
		e.touched = time.Now()
	}

	remaining := cap - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   used < cap,
		Used:      used,
		Cap:       cap,
		Remaining: remaining,
	}
}

// Increment atomically adds a finished turn's token total to the counter and
// returns the post-turn usage snapshot. Counters never decrease.
func (g *Gate) Increment(conversationID, mode string, tokens int) Decision {
	cap := g.capFor(mode)

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.used[conversationID]
	if !ok {
		e = &entry{}
		g.used[conversationID] = e
	}
	e.used += tokens
	e.touched = time.Now()

	remaining := cap - e.used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   e.used < cap,
		Used:      e.used,
		Cap:       cap,
		Remaining: remaining,
	}
}

// StartSweeper evicts counters untouched for the TTL, keeping key cardinality
// bounded by daily traffic. Runs until ctx is cancelled.
func (g *Gate) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (g *Gate) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, e := range g.used {
		if time.Since(e.touched) > g.ttl {
			delete(g.used, id)
		}
	}
}
