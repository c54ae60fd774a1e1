package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"chat-sync-service/internal/models"
	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/repositories"
	"chat-sync-service/internal/telemetry"
)

// WebSocketHandler upgrades connections and speaks the room event protocol.
type WebSocketHandler struct {
	hub   *Hub
	audit *telemetry.AuditEmitter
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(hub *Hub, audit *telemetry.AuditEmitter) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, audit: audit}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the client, and runs its read
// loop until disconnect.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-sync-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		SenderID:    c.Query("sender_id"),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)
	go client.writeLoop()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycleEvent(ctx, "ws_connect", "", info, "")

	go h.readLoop(context.WithoutCancel(ctx), client)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, client *Client) {
	info := client.Info()
	var closeReason string

	defer func() {
		h.hub.Disconnect(client)
		client.close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycleEvent(ctx, "ws_disconnect", "", info, closeReason)
	}()

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycleEvent(ctx, "ws_error", "", info, closeReason)
			}
			return
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			client.deliver(models.ServerEvent{
				Type:      models.EventError,
				Error:     "malformed event",
				ErrorKind: models.ErrorKindProtocol,
			})
			continue
		}

		h.dispatch(ctx, client, ev)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, client *Client, ev models.ClientEvent) {
	if ev.ConversationID == "" {
		client.deliver(models.ServerEvent{
			Type:      models.EventError,
			Error:     "conversationId is required",
			ErrorKind: models.ErrorKindProtocol,
		})
		return
	}

	switch ev.Type {
	case models.EventJoin:
		h.hub.Join(ev.ConversationID, client)
		observability.IncWSEvent("join")
	case models.EventLeave:
		h.hub.Leave(ev.ConversationID, client)
		observability.IncWSEvent("leave")
	case models.EventMessage:
		h.handleMessage(ctx, client, ev)
	case models.EventTyping:
		h.hub.Typing(ev.ConversationID, client, ev.SenderID, ev.SenderName)
	case models.EventStopTyping:
		h.hub.StopTyping(ev.ConversationID, client, ev.SenderID)
	default:
		client.deliver(models.ServerEvent{
			Type:      models.EventError,
			Error:     "unknown event type",
			ErrorKind: models.ErrorKindProtocol,
		})
	}
}

// handleMessage persists and fans out one chat message. Failures are fatal to
// this operation only and are surfaced to the sender alone.
func (h *WebSocketHandler) handleMessage(ctx context.Context, client *Client, ev models.ClientEvent) {
	msg, err := h.hub.PublishMessage(ctx, ev.ConversationID, client, ev.SenderID, ev.SenderName, ev.Text)
	if err != nil {
		kind := models.ErrorKindStore
		if errors.Is(err, repositories.ErrValidation) {
			kind = models.ErrorKindValidation
		}
		log.Warn().Err(err).Str("conversation_id", ev.ConversationID).Msg("message publish failed")
		client.deliver(models.ServerEvent{
			Type:           models.EventError,
			ConversationID: ev.ConversationID,
			Error:          err.Error(),
			ErrorKind:      kind,
		})
		return
	}

	observability.IncWSEvent("message")
	h.audit.Emit(ctx, "INFO", "message persisted id="+msg.ID, client.Info().RequestID, msg.SenderID)
}

func (h *WebSocketHandler) publishLifecycleEvent(ctx context.Context, event, conversationID string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, observability.WSEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.WSEventPayload{
			ConversationID: conversationID,
			Event:          event,
			ConnID:         info.ConnID,
			SenderID:       info.SenderID,
			DurationMS:     time.Since(info.ConnectedAt).Milliseconds(),
			Reason:         reason,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
