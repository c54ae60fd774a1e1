package client

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingNotifier(ttl time.Duration) (*TypingNotifier, *atomic.Int32, *atomic.Int32) {
	var starts, stops atomic.Int32
	n := NewTypingNotifier(ttl,
		func() { starts.Add(1) },
		func() { stops.Add(1) },
	)
	return n, &starts, &stops
}

func TestTypingNotifierBurstEmitsOneStartOneStop(t *testing.T) {
	n, starts, stops := newCountingNotifier(40 * time.Millisecond)

	for i := 0; i < 10; i++ {
		n.InputChanged()
	}

	assert.Equal(t, int32(1), starts.Load(), "a burst of keystrokes is one start")
	assert.Equal(t, int32(0), stops.Load())
	assert.True(t, n.Typing())

	require.Eventually(t, func() bool { return stops.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), stops.Load(), "silence emits exactly one stop")
	assert.False(t, n.Typing())
}

func TestTypingNotifierStopOnSend(t *testing.T) {
	n, starts, stops := newCountingNotifier(40 * time.Millisecond)

	n.InputChanged()
	n.Stop()

	assert.Equal(t, int32(1), starts.Load())
	assert.Equal(t, int32(1), stops.Load())
	assert.False(t, n.Typing())

	// The cancelled expiry timer must not double the stop.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), stops.Load())
}

func TestTypingNotifierStopWhileIdleIsNoop(t *testing.T) {
	n, starts, stops := newCountingNotifier(40 * time.Millisecond)

	n.Stop()
	n.Stop()

	assert.Equal(t, int32(0), starts.Load())
	assert.Equal(t, int32(0), stops.Load())
}

func TestTypingNotifierRestartsAfterExpiry(t *testing.T) {
	n, starts, stops := newCountingNotifier(30 * time.Millisecond)

	n.InputChanged()
	require.Eventually(t, func() bool { return stops.Load() == 1 }, time.Second, 5*time.Millisecond)

	n.InputChanged()
	assert.Equal(t, int32(2), starts.Load(), "typing again after expiry is a fresh start")
	require.Eventually(t, func() bool { return stops.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTypingNotifierInputReArmsExpiry(t *testing.T) {
	n, _, stops := newCountingNotifier(80 * time.Millisecond)

	n.InputChanged()
	time.Sleep(50 * time.Millisecond)
	n.InputChanged()

	time.Sleep(50 * time.Millisecond) // past the first deadline, not the second
	assert.Equal(t, int32(0), stops.Load(), "continued input keeps the state alive")
	assert.True(t, n.Typing())

	require.Eventually(t, func() bool { return stops.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTypingNotifierDefaultInterval(t *testing.T) {
	n := NewTypingNotifier(0, nil, nil)
	assert.Equal(t, DefaultTypingInterval, n.ttl)

	// Nil callbacks must be tolerated.
	n.InputChanged()
	n.Stop()
}
