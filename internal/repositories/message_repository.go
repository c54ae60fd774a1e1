package repositories

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"chat-sync-service/internal/models"
)

// MaxPageLimit caps the page size regardless of what a caller requests.
const MaxPageLimit = 100

var (
	ErrValidation      = errors.New("validation failed")
	ErrMessageNotFound = errors.New("message not found")
)

// MessageRepository is the append-only, time-ordered message log backing
// pagination. Implementations assign ULID ids at persistence time and must
// return pages re-ordered ascending (oldest first); that re-ordering is the
// repository's responsibility, not the caller's.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID, senderName, text string) (models.Message, error)
	ListMessagesBefore(ctx context.Context, conversationID string, limit int, beforeID string) ([]models.Message, error)
	GetMessageConversation(ctx context.Context, messageID string) (string, error)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newMessageID returns a ULID for the given instant. The shared monotonic
// entropy keeps ids strictly increasing even within one millisecond.
func newMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

func validateNewMessage(conversationID, senderID, text string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversationId is required", ErrValidation)
	}
	if senderID == "" {
		return fmt.Errorf("%w: senderId is required", ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message, assigning its id and creation time.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID, senderName, text string) (models.Message, error) {
	if err := validateNewMessage(conversationID, senderID, text); err != nil {
		return models.Message{}, err
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:             newMessageID(now),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Text:           strings.TrimSpace(text),
		CreatedAt:      now,
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, sender_name, text, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Text, msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListMessagesBefore returns up to limit messages with id strictly less than
// beforeID (the newest messages when beforeID is empty), ascending.
func (r *MessageRepo) ListMessagesBefore(ctx context.Context, conversationID string, limit int, beforeID string) ([]models.Message, error) {
	limit = clampLimit(limit)

	var msgs []models.Message
	var err error
	if beforeID == "" {
		err = r.db.SelectContext(ctx, &msgs, `SELECT id, conversation_id, sender_id, sender_name, text, created_at
            FROM messages WHERE conversation_id=$1
            ORDER BY id DESC LIMIT $2`, conversationID, limit)
	} else {
		err = r.db.SelectContext(ctx, &msgs, `SELECT id, conversation_id, sender_id, sender_name, text, created_at
            FROM messages WHERE conversation_id=$1 AND id < $2
            ORDER BY id DESC LIMIT $3`, conversationID, beforeID, limit)
	}
	if err != nil {
		return nil, err
	}

	reverseMessages(msgs)
	return msgs, nil
}

// GetMessageConversation reports which conversation a message belongs to.
func (r *MessageRepo) GetMessageConversation(ctx context.Context, messageID string) (string, error) {
	var conversationID string
	err := r.db.GetContext(ctx, &conversationID, `SELECT conversation_id FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMessageNotFound
	}
	return conversationID, err
}

// reverseMessages flips a newest-first query result into ascending order.
func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
