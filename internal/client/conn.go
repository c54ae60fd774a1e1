package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chat-sync-service/internal/models"
)

// Conn is the live channel for one conversation view. It is owned by the
// embedding view alongside its Controller: created when the conversation
// opens, joined on start, left and closed on teardown.
type Conn struct {
	ws             *websocket.Conn
	conversationID string
	senderID       string
	senderName     string
	ctrl           *Controller

	// OnSendFailed receives error events for this connection's own sends, so
	// the view can offer a retry without re-fetching history.
	OnSendFailed func(kind, message string)

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the live channel, joins the conversation room, and starts
// dispatching events into the controller.
func Dial(ctx context.Context, wsURL, conversationID, senderID, senderName string, ctrl *Controller) (*Conn, error) {
	header := http.Header{}
	header.Set("X-Request-Id", uuid.NewString())

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		ws:             ws,
		conversationID: conversationID,
		senderID:       senderID,
		senderName:     senderName,
		ctrl:           ctrl,
		done:           make(chan struct{}),
	}

	if err := c.write(models.ClientEvent{Type: models.EventJoin, ConversationID: conversationID, SenderID: senderID}); err != nil {
		_ = ws.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// Send publishes one chat message.
func (c *Conn) Send(text string) error {
	return c.write(models.ClientEvent{
		Type:           models.EventMessage,
		ConversationID: c.conversationID,
		SenderID:       c.senderID,
		SenderName:     c.senderName,
		Text:           text,
	})
}

// SendTyping broadcasts the typing-started signal.
func (c *Conn) SendTyping() error {
	return c.write(models.ClientEvent{
		Type:           models.EventTyping,
		ConversationID: c.conversationID,
		SenderID:       c.senderID,
		SenderName:     c.senderName,
	})
}

// SendStopTyping broadcasts the typing-stopped signal.
func (c *Conn) SendStopTyping() error {
	return c.write(models.ClientEvent{
		Type:           models.EventStopTyping,
		ConversationID: c.conversationID,
		SenderID:       c.senderID,
	})
}

// Close leaves the room and tears the channel down.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.write(models.ClientEvent{Type: models.EventLeave, ConversationID: c.conversationID, SenderID: c.senderID})
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) write(ev models.ClientEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(ev)
}

func (c *Conn) readLoop() {
	for {
		var ev models.ServerEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			select {
			case <-c.done:
			default:
				log.Warn().Err(err).Str("conversation_id", c.conversationID).Msg("live channel closed")
			}
			return
		}

		switch ev.Type {
		case models.EventMessage:
			if ev.Message != nil {
				c.ctrl.ApplyLive(*ev.Message)
			}
		case models.EventTyping:
			c.ctrl.peerTyping(ev.SenderID, ev.SenderName)
		case models.EventStopTyping:
			c.ctrl.peerStopTyping(ev.SenderID)
		case models.EventError:
			if c.OnSendFailed != nil {
				c.OnSendFailed(ev.ErrorKind, ev.Error)
			}
		}
	}
}
