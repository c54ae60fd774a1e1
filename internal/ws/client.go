package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chat-sync-service/internal/models"
)

const sendBuffer = 64

// ConnInfo identifies one live connection.
type ConnInfo struct {
	ConnID      string
	SenderID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client wraps a websocket connection with a buffered outbound queue.
// Gorilla conns do not allow concurrent writers, so all fan-out goes through
// the send channel and a single write loop.
type Client struct {
	conn *websocket.Conn
	info ConnInfo

	send      chan models.ServerEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		conn: conn,
		info: info,
		send: make(chan models.ServerEvent, sendBuffer),
		done: make(chan struct{}),
	}
}

// Info returns the connection's identity.
func (c *Client) Info() ConnInfo {
	return c.info
}

// deliver queues an event for the connection. Delivery is best-effort: a slow
// consumer with a full queue loses the event and reconciles via pagination.
func (c *Client) deliver(ev models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	case c.send <- ev:
		return true
	default:
		log.Warn().Str("conn_id", c.info.ConnID).Str("event", ev.Type).Msg("send queue full, dropping event")
		return false
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Warn().Err(err).Str("conn_id", c.info.ConnID).Msg("websocket write error")
				c.close()
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
