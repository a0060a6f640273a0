package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agasthyaps/nisa-labs-sub000/internal/prompts"
)

func testGate() *Gate {
	return New(Caps{General: 50000, CSV: 100000, Image: 75000})
}

func TestCheckFreshConversation(t *testing.T) {
	g := testGate()
	d := g.Check("conv-1", prompts.ModeGeneral)
	require.True(t, d.Allowed)
	require.Equal(t, 0, d.Used)
	require.Equal(t, 50000, d.Cap)
	require.Equal(t, 50000, d.Remaining)
}

func TestCapsPerMode(t *testing.T) {
	g := testGate()
	require.Equal(t, 50000, g.Check("a", prompts.ModeGeneral).Cap)
	require.Equal(t, 100000, g.Check("a", prompts.ModeCSV).Cap)
	require.Equal(t, 75000, g.Check("a", prompts.ModeImage).Cap)
	// Unknown modes fall back to the general cap.
	require.Equal(t, 50000, g.Check("a", "bogus").Cap)
}

func TestOverageByAtMostOneTurn(t *testing.T) {
	// The check runs before the model call, so a conversation close to its
	// cap gets one more turn and may land over it; the next check rejects.
	g := testGate()

	d := g.Check("conv", prompts.ModeCSV)
	require.True(t, d.Allowed)
	d = g.Increment("conv", prompts.ModeCSV, 40000)
	require.True(t, d.Allowed)
	require.Equal(t, 40000, d.Used)

	d = g.Check("conv", prompts.ModeCSV)
	require.True(t, d.Allowed)
	d = g.Increment("conv", prompts.ModeCSV, 65000)
	require.False(t, d.Allowed)
	require.Equal(t, 105000, d.Used)
	require.Equal(t, 0, d.Remaining)

	d = g.Check("conv", prompts.ModeCSV)
	require.False(t, d.Allowed)
}

func TestCountersAreIndependent(t *testing.T) {
	g := testGate()
	g.Increment("a", prompts.ModeGeneral, 50000)
	require.False(t, g.Check("a", prompts.ModeGeneral).Allowed)
	require.True(t, g.Check("b", prompts.ModeGeneral).Allowed)
}

func TestCounterAtExactCap(t *testing.T) {
	g := testGate()
	d := g.Increment("conv", prompts.ModeGeneral, 50000)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
}

func TestSweepEvictsStaleCounters(t *testing.T) {
	g := testGate()
	g.ttl = 10 * time.Millisecond
	g.Increment("stale", prompts.ModeGeneral, 50000)

	time.Sleep(20 * time.Millisecond)
	g.sweep()

	d := g.Check("stale", prompts.ModeGeneral)
	require.True(t, d.Allowed)
	require.Equal(t, 0, d.Used)
}
