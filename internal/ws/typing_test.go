package ws

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync-service/internal/mocks"
	"chat-sync-service/internal/models"
)

func TestTypingTrackerStartIdempotent(t *testing.T) {
	tracker := newTypingTracker(time.Hour, nil)
	a := testClient("a", "u1")

	require.True(t, tracker.Started("c1", "u1", a), "first input transitions Idle -> Typing")
	require.False(t, tracker.Started("c1", "u1", a), "repeated input does not re-broadcast")
	require.False(t, tracker.Started("c1", "u1", a))

	require.True(t, tracker.Stopped("c1", "u1"))
	require.False(t, tracker.Stopped("c1", "u1"), "already idle")
}

func TestTypingTrackerExpiry(t *testing.T) {
	var fired atomic.Int32
	tracker := newTypingTracker(30*time.Millisecond, func(conversationID, senderID string, origin *Client) {
		fired.Add(1)
	})
	a := testClient("a", "u1")

	tracker.Started("c1", "u1", a)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "expiry fires exactly once")
	require.True(t, tracker.Started("c1", "u1", a), "sender is idle again after expiry")
}

func TestTypingTrackerStopCancelsTimer(t *testing.T) {
	var fired atomic.Int32
	tracker := newTypingTracker(30*time.Millisecond, func(conversationID, senderID string, origin *Client) {
		fired.Add(1)
	})
	a := testClient("a", "u1")

	tracker.Started("c1", "u1", a)
	require.True(t, tracker.Stopped("c1", "u1"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load(), "cancelled timer must not fire")
}

func TestTypingTrackerReArmDelaysExpiry(t *testing.T) {
	var fired atomic.Int32
	tracker := newTypingTracker(80*time.Millisecond, func(conversationID, senderID string, origin *Client) {
		fired.Add(1)
	})
	a := testClient("a", "u1")

	tracker.Started("c1", "u1", a)
	time.Sleep(50 * time.Millisecond)
	tracker.Started("c1", "u1", a) // re-arm

	time.Sleep(50 * time.Millisecond) // 100ms after first arm, 50ms after re-arm
	assert.Equal(t, int32(0), fired.Load(), "re-arming cancels the prior timer")

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubTypingBroadcastsOnce(t *testing.T) {
	hub := NewHub(new(mocks.MessageRepositoryMock), time.Hour)
	a := testClient("a", "u1")
	b := testClient("b", "u2")
	hub.Join("c1", a)
	hub.Join("c1", b)

	hub.Typing("c1", a, "u1", "alice")
	hub.Typing("c1", a, "u1", "alice")
	hub.Typing("c1", a, "u1", "alice")

	ev := receiveEvent(t, b)
	require.Equal(t, models.EventTyping, ev.Type)
	assert.Equal(t, "u1", ev.SenderID)
	assert.Equal(t, "alice", ev.SenderName)
	assertNoEvent(t, b)
	assertNoEvent(t, a)

	hub.StopTyping("c1", a, "u1")
	stop := receiveEvent(t, b)
	require.Equal(t, models.EventStopTyping, stop.Type)
	assert.Equal(t, "u1", stop.SenderID)
	assertNoEvent(t, b)

	// A stop without a preceding start broadcasts nothing.
	hub.StopTyping("c1", a, "u1")
	assertNoEvent(t, b)
}

func TestHubTypingExpiryBroadcastsStop(t *testing.T) {
	hub := NewHub(new(mocks.MessageRepositoryMock), 30*time.Millisecond)
	a := testClient("a", "u1")
	b := testClient("b", "u2")
	hub.Join("c1", a)
	hub.Join("c1", b)

	hub.Typing("c1", a, "u1", "alice")
	require.Equal(t, models.EventTyping, receiveEvent(t, b).Type)

	stop := receiveEvent(t, b)
	require.Equal(t, models.EventStopTyping, stop.Type)
	assert.Equal(t, "u1", stop.SenderID)
	assertNoEvent(t, b)
}

func TestHubDisconnectClearsTyping(t *testing.T) {
	// Long TTL: only the disconnect cleanup can clear the state.
	hub := NewHub(new(mocks.MessageRepositoryMock), time.Hour)
	a := testClient("a", "u1")
	b := testClient("b", "u2")
	hub.Join("c1", a)
	hub.Join("c1", b)

	hub.Typing("c1", a, "u1", "alice")
	require.Equal(t, models.EventTyping, receiveEvent(t, b).Type)

	hub.Disconnect(a)

	stop := receiveEvent(t, b)
	require.Equal(t, models.EventStopTyping, stop.Type)
	assert.Equal(t, "u1", stop.SenderID, "peer indicators must not stay stuck after a disconnect")
	assertNoEvent(t, b)
}

func TestHubLeaveClearsTyping(t *testing.T) {
	hub := NewHub(new(mocks.MessageRepositoryMock), time.Hour)
	a := testClient("a", "u1")
	b := testClient("b", "u2")
	hub.Join("c1", a)
	hub.Join("c1", b)

	hub.Typing("c1", a, "u1", "alice")
	require.Equal(t, models.EventTyping, receiveEvent(t, b).Type)

	hub.Leave("c1", a)
	require.Equal(t, models.EventStopTyping, receiveEvent(t, b).Type)
}
