package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync-service/internal/mocks"
	"chat-sync-service/internal/models"
	"chat-sync-service/internal/repositories"
)

func testClient(connID, senderID string) *Client {
	return newClient(nil, ConnInfo{ConnID: connID, SenderID: senderID, ConnectedAt: time.Now()})
}

func receiveEvent(t *testing.T, c *Client) models.ServerEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("expected an event for conn %s", c.info.ConnID)
		return models.ServerEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event %q for conn %s", ev.Type, c.info.ConnID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub(new(mocks.MessageRepositoryMock), time.Second)
	a := testClient("a", "u1")

	hub.Join("c1", a)
	require.Len(t, hub.rooms, 1)
	require.Len(t, hub.rooms["c1"], 1)

	// Re-joining the same room is a no-op.
	hub.Join("c1", a)
	require.Len(t, hub.rooms["c1"], 1)

	hub.Leave("c1", a)
	require.Empty(t, hub.rooms)
}

func TestHubDisconnectRemovesAllRooms(t *testing.T) {
	hub := NewHub(new(mocks.MessageRepositoryMock), time.Second)
	a := testClient("a", "u1")

	hub.Join("c1", a)
	hub.Join("c2", a)
	require.Len(t, hub.rooms, 2)

	hub.Disconnect(a)
	require.Empty(t, hub.rooms)
	require.Empty(t, hub.joined)
}

func TestPublishMessageFanOutExcludesOrigin(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	hub := NewHub(repo, time.Second)

	a := testClient("a", "u1")
	b := testClient("b", "u2")
	hub.Join("c1", a)
	hub.Join("c1", b)

	persisted := models.Message{ID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", ConversationID: "c1", SenderID: "u1", Text: "hi"}
	repo.On("CreateMessage", mock.Anything, "c1", "u1", "alice", "hi").Return(persisted, nil).Once()

	msg, err := hub.PublishMessage(context.Background(), "c1", a, "u1", "alice", "hi")
	require.NoError(t, err)
	assert.Equal(t, persisted.ID, msg.ID)

	ev := receiveEvent(t, b)
	require.Equal(t, models.EventMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, persisted.ID, ev.Message.ID, "peer receives the persisted id")
	assertNoEvent(t, b)

	// The origin's own client gets nothing on the live channel.
	assertNoEvent(t, a)
	repo.AssertExpectations(t)
}

func TestPublishMessageStoreFailureNoFanOut(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	hub := NewHub(repo, time.Second)

	a := testClient("a", "u1")
	b := testClient("b", "u2")
	hub.Join("c1", a)
	hub.Join("c1", b)

	repo.On("CreateMessage", mock.Anything, "c1", "u1", "", "hi").Return(models.Message{}, assert.AnError).Once()

	_, err := hub.PublishMessage(context.Background(), "c1", a, "u1", "", "hi")
	require.Error(t, err)

	assertNoEvent(t, b)
	assertNoEvent(t, a)
	repo.AssertExpectations(t)
}

func TestPublishMessageValidationError(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	hub := NewHub(repo, time.Second)

	a := testClient("a", "u1")
	hub.Join("c1", a)

	repo.On("CreateMessage", mock.Anything, "c1", "u1", "", "  ").Return(models.Message{}, repositories.ErrValidation).Once()

	_, err := hub.PublishMessage(context.Background(), "c1", a, "u1", "", "  ")
	require.ErrorIs(t, err, repositories.ErrValidation)
	repo.AssertExpectations(t)
}

func TestPublishMessageToEmptyRoom(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	hub := NewHub(repo, time.Second)

	a := testClient("a", "u1")
	hub.Join("c1", a)

	persisted := models.Message{ID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", ConversationID: "c1", SenderID: "u1", Text: "hi"}
	repo.On("CreateMessage", mock.Anything, "c1", "u1", "", "hi").Return(persisted, nil).Once()

	_, err := hub.PublishMessage(context.Background(), "c1", a, "u1", "", "hi")
	require.NoError(t, err)
	assertNoEvent(t, a)
}
