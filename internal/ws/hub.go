package ws

import (
	"context"
	"sync"
	"time"

	"chat-sync-service/internal/models"
	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/repositories"
)

// Hub maintains conversation-scoped room membership and fans events out to
// every member except the originator.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	joined map[*Client]map[string]bool
	typing *TypingTracker
	repo   repositories.MessageRepository
}

// NewHub creates an empty hub backed by the given message repository.
func NewHub(repo repositories.MessageRepository, typingTTL time.Duration) *Hub {
	h := &Hub{
		rooms:  make(map[string]map[*Client]bool),
		joined: make(map[*Client]map[string]bool),
		repo:   repo,
	}
	h.typing = newTypingTracker(typingTTL, h.typingExpired)
	return h
}

// Join adds the connection to a room. Re-joining the same room is a no-op.
func (h *Hub) Join(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]bool)
	}
	h.rooms[conversationID][c] = true
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]bool)
	}
	h.joined[c][conversationID] = true
}

// Leave removes the connection from a room.
func (h *Hub) Leave(conversationID string, c *Client) {
	h.mu.Lock()
	h.removeLocked(conversationID, c)
	h.mu.Unlock()

	h.stopTypingFor(conversationID, c)
}

// Disconnect removes the connection from every room and clears any typing
// state it originated, emitting stopTyping so peers' indicators cannot stick.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	conversations := make([]string, 0, len(h.joined[c]))
	for conversationID := range h.joined[c] {
		conversations = append(conversations, conversationID)
	}
	for _, conversationID := range conversations {
		h.removeLocked(conversationID, c)
	}
	delete(h.joined, c)
	h.mu.Unlock()

	for _, stopped := range h.typing.CleanupConn(c) {
		h.broadcastStopTyping(stopped.conversationID, stopped.senderID, c)
	}
}

func (h *Hub) removeLocked(conversationID string, c *Client) {
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if set, ok := h.joined[c]; ok {
		delete(set, conversationID)
	}
}

// PublishMessage persists the message and, only on success, fans it out to
// every room member except the origin connection. A store failure aborts with
// no fan-out at all.
func (h *Hub) PublishMessage(ctx context.Context, conversationID string, origin *Client, senderID, senderName, text string) (models.Message, error) {
	msg, err := h.repo.CreateMessage(ctx, conversationID, senderID, senderName, text)
	if err != nil {
		return models.Message{}, err
	}

	observability.IncMessagePersisted()
	h.broadcast(conversationID, models.ServerEvent{
		Type:           models.EventMessage,
		ConversationID: conversationID,
		Message:        &msg,
	}, origin)
	return msg, nil
}

// Typing records a typing input for the sender. The first input broadcasts a
// typing event; repeated inputs while already typing only re-arm the expiry.
func (h *Hub) Typing(conversationID string, origin *Client, senderID, senderName string) {
	if !h.typing.Started(conversationID, senderID, origin) {
		return
	}
	observability.IncTypingEvent("started")
	h.broadcast(conversationID, models.ServerEvent{
		Type:           models.EventTyping,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
	}, origin)
}

// StopTyping clears the sender's typing state on an explicit stop or send.
func (h *Hub) StopTyping(conversationID string, origin *Client, senderID string) {
	if !h.typing.Stopped(conversationID, senderID) {
		return
	}
	h.broadcastStopTyping(conversationID, senderID, origin)
}

func (h *Hub) stopTypingFor(conversationID string, c *Client) {
	for _, stopped := range h.typing.CleanupConversation(conversationID, c) {
		h.broadcastStopTyping(stopped.conversationID, stopped.senderID, c)
	}
}

// typingExpired is invoked by the tracker when an expiry timer fires.
func (h *Hub) typingExpired(conversationID, senderID string, origin *Client) {
	h.broadcastStopTyping(conversationID, senderID, origin)
}

func (h *Hub) broadcastStopTyping(conversationID, senderID string, origin *Client) {
	observability.IncTypingEvent("stopped")
	h.broadcast(conversationID, models.ServerEvent{
		Type:           models.EventStopTyping,
		ConversationID: conversationID,
		SenderID:       senderID,
	}, origin)
}

// broadcast delivers the event to every room member except origin. Delivery
// is at-most-once and best-effort per connection.
func (h *Hub) broadcast(conversationID string, ev models.ServerEvent, origin *Client) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[conversationID]))
	for member := range h.rooms[conversationID] {
		if member != origin {
			members = append(members, member)
		}
	}
	h.mu.RUnlock()

	for _, member := range members {
		member.deliver(ev)
	}
}
