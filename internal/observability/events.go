package observability

// Routing keys for websocket lifecycle events.
const (
	WSEventsRoutingKey = "ws_events.conversations"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSEventPayload describes one websocket lifecycle event for the broker.
type WSEventPayload struct {
	ConversationID string `json:"conversation_id"`
	Event          string `json:"event"`
	ConnID         string `json:"conn_id"`
	SenderID       string `json:"sender_id"`
	DurationMS     int64  `json:"duration_ms"`
	Reason         string `json:"reason"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
