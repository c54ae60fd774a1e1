package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-sync-service/internal/models"
)

const messageOwnersKey = "message_owners"

// RedisMessageRepo keeps each conversation's log in a sorted set of message
// ids. All members share score zero, so the set orders lexicographically —
// for ULIDs that is chronological order, which makes the cursor a plain
// exclusive lex bound.
type RedisMessageRepo struct {
	client *redis.Client
}

// NewRedisMessageRepo connects to Redis and verifies the connection.
func NewRedisMessageRepo(ctx context.Context, redisURL string) (*RedisMessageRepo, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisMessageRepo{client: client}, nil
}

// Close closes the Redis connection.
func (r *RedisMessageRepo) Close() error {
	return r.client.Close()
}

func conversationIndexKey(conversationID string) string {
	return fmt.Sprintf("conv:%s:messages", conversationID)
}

func conversationDataKey(conversationID string) string {
	return fmt.Sprintf("conv:%s:data", conversationID)
}

// CreateMessage stores a message, assigning its id and creation time.
func (r *RedisMessageRepo) CreateMessage(ctx context.Context, conversationID, senderID, senderName, text string) (models.Message, error) {
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

	body, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, err
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, conversationIndexKey(conversationID), redis.Z{Score: 0, Member: msg.ID})
	pipe.HSet(ctx, conversationDataKey(conversationID), msg.ID, body)
	pipe.HSet(ctx, messageOwnersKey, msg.ID, conversationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	return msg, nil
}

// ListMessagesBefore returns up to limit messages with id strictly less than
// beforeID (the newest messages when beforeID is empty), ascending.
func (r *RedisMessageRepo) ListMessagesBefore(ctx context.Context, conversationID string, limit int, beforeID string) ([]models.Message, error) {
	limit = clampLimit(limit)

	max := "+"
	if beforeID != "" {
		max = "(" + beforeID // exclusive
	}

	ids, err := r.client.ZRevRangeByLex(ctx, conversationIndexKey(conversationID), &redis.ZRangeBy{
		Min:   "-",
		Max:   max,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Message{}, nil
	}

	fields := make([]string, len(ids))
	copy(fields, ids)
	values, err := r.client.HMGet(ctx, conversationDataKey(conversationID), fields...).Result()
	if err != nil {
		return nil, err
	}

	// ids arrive newest-first; walk backwards to hand out ascending order.
	msgs := make([]models.Message, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		raw, ok := values[i].(string)
		if !ok {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// GetMessageConversation reports which conversation a message belongs to.
func (r *RedisMessageRepo) GetMessageConversation(ctx context.Context, messageID string) (string, error) {
	conversationID, err := r.client.HGet(ctx, messageOwnersKey, messageID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMessageNotFound
	}
	return conversationID, err
}
