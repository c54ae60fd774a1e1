package ws

import (
	"sync"
	"time"
)

// DefaultTypingTTL is how long a sender stays Typing without further input.
const DefaultTypingTTL = 800 * time.Millisecond

type typingKey struct {
	conversationID string
	senderID       string
}

type typingState struct {
	origin *Client
	timer  *time.Timer
	gen    uint64
}

type stoppedTyping struct {
	conversationID string
	senderID       string
}

// TypingTracker holds the Idle/Typing state per (conversation, sender) with
// one cancellable expiry timer each. Arming a new timer always cancels the
// prior one, and firings are generation-checked so a stale timer can never
// override a newer state.
type TypingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	states  map[typingKey]*typingState
	expired func(conversationID, senderID string, origin *Client)
}

func newTypingTracker(ttl time.Duration, expired func(conversationID, senderID string, origin *Client)) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:     ttl,
		states:  make(map[typingKey]*typingState),
		expired: expired,
	}
}

// Started records a typing input. It returns true only on the Idle -> Typing
// transition; further inputs while already Typing just re-arm the expiry.
func (t *TypingTracker) Started(conversationID, senderID string, origin *Client) bool {
	key := typingKey{conversationID, senderID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.states[key]; ok {
		st.timer.Stop()
		st.gen++
		st.timer = t.armLocked(key, st.gen)
		return false
	}

	st := &typingState{origin: origin}
	st.timer = t.armLocked(key, st.gen)
	t.states[key] = st
	return true
}

// Stopped clears the sender's typing state, cancelling the pending timer
// synchronously with the transition. It returns true if the sender was Typing.
func (t *TypingTracker) Stopped(conversationID, senderID string) bool {
	key := typingKey{conversationID, senderID}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[key]
	if !ok {
		return false
	}
	st.timer.Stop()
	delete(t.states, key)
	return true
}

// CleanupConn clears every typing state originated by the given connection
// and reports the keys that were Typing.
func (t *TypingTracker) CleanupConn(c *Client) []stoppedTyping {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stopped []stoppedTyping
	for key, st := range t.states {
		if st.origin != c {
			continue
		}
		st.timer.Stop()
		delete(t.states, key)
		stopped = append(stopped, stoppedTyping{key.conversationID, key.senderID})
	}
	return stopped
}

// CleanupConversation clears the connection's typing state in one room.
func (t *TypingTracker) CleanupConversation(conversationID string, c *Client) []stoppedTyping {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stopped []stoppedTyping
	for key, st := range t.states {
		if key.conversationID != conversationID || st.origin != c {
			continue
		}
		st.timer.Stop()
		delete(t.states, key)
		stopped = append(stopped, stoppedTyping{key.conversationID, key.senderID})
	}
	return stopped
}

func (t *TypingTracker) armLocked(key typingKey, gen uint64) *time.Timer {
	return time.AfterFunc(t.ttl, func() {
		t.fire(key, gen)
	})
}

func (t *TypingTracker) fire(key typingKey, gen uint64) {
	t.mu.Lock()
	st, ok := t.states[key]
	if !ok || st.gen != gen {
		// Stale firing: the state was stopped or re-armed since.
		t.mu.Unlock()
		return
	}
	origin := st.origin
	delete(t.states, key)
	t.mu.Unlock()

	if t.expired != nil {
		t.expired(key.conversationID, key.senderID, origin)
	}
}
