package models

import "time"

// Message is a persisted chat message. IDs are ULIDs assigned at persistence
// time, so within a conversation ascending id order matches ascending
// CreatedAt order. Messages are immutable once stored.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	SenderID       string    `db:"sender_id" json:"senderId"`
	SenderName     string    `db:"sender_name" json:"senderName,omitempty"`
	Text           string    `db:"text" json:"text"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Event types carried on the websocket channel.
const (
	EventJoin       = "join"
	EventLeave      = "leave"
	EventMessage    = "message"
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
	EventError      = "error"
)

// Error kinds reported to a sender, so clients can tell a failed send apart
// from other failures and retry the right operation.
const (
	ErrorKindValidation = "validation"
	ErrorKindStore      = "store"
	ErrorKindProtocol   = "protocol"
)

// ClientEvent is the envelope a client sends over the websocket channel.
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	Text           string `json:"text,omitempty"`
}

// ServerEvent is the envelope fanned out to room members.
type ServerEvent struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversationId,omitempty"`
	Message        *Message `json:"message,omitempty"`
	SenderID       string   `json:"senderId,omitempty"`
	SenderName     string   `json:"senderName,omitempty"`
	Error          string   `json:"error,omitempty"`
	ErrorKind      string   `json:"kind,omitempty"`
}

// MessagePage is the pagination response body. NextCursor is the id of the
// oldest message in the page, nil once history is exhausted.
type MessagePage struct {
	OK         bool      `json:"ok"`
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
}
