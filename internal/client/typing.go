package client

import (
	"sync"
	"time"
)

// DefaultTypingInterval is how long after the last input the notifier emits
// the stop signal.
const DefaultTypingInterval = 800 * time.Millisecond

// TypingNotifier is the input side of the typing presence machine. The first
// input change emits the start signal; further inputs while typing only
// re-arm the expiry. Silence for the interval, or an explicit Stop on send,
// emits the stop signal. There is never more than one outstanding timer, and
// firings are generation-checked so a stale timer cannot emit a spurious stop
// after newer input.
type TypingNotifier struct {
	mu     sync.Mutex
	ttl    time.Duration
	typing bool
	gen    uint64
	timer  *time.Timer

	start func()
	stop  func()
}

// NewTypingNotifier builds a notifier with the given expiry interval; start
// and stop are the broadcast callbacks.
func NewTypingNotifier(ttl time.Duration, start, stop func()) *TypingNotifier {
	if ttl <= 0 {
		ttl = DefaultTypingInterval
	}
	return &TypingNotifier{ttl: ttl, start: start, stop: stop}
}

// InputChanged records one text-input change.
func (n *TypingNotifier) InputChanged() {
	n.mu.Lock()
	started := !n.typing
	n.typing = true
	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.ttl, func() { n.expire(gen) })
	n.mu.Unlock()

	if started && n.start != nil {
		n.start()
	}
}

// Stop ends the typing state explicitly (send or blur). The pending timer is
// cancelled synchronously with the transition.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	if !n.typing {
		n.mu.Unlock()
		return
	}
	n.typing = false
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()

	if n.stop != nil {
		n.stop()
	}
}

func (n *TypingNotifier) expire(gen uint64) {
	n.mu.Lock()
	if !n.typing || n.gen != gen {
		n.mu.Unlock()
		return
	}
	n.typing = false
	n.timer = nil
	n.mu.Unlock()

	if n.stop != nil {
		n.stop()
	}
}

// Typing reports the current state.
func (n *TypingNotifier) Typing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.typing
}
