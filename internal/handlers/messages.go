package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"chat-sync-service/internal/models"
	"chat-sync-service/internal/repositories"
)

// DefaultPageLimit is used when the caller does not pass a limit.
const DefaultPageLimit = 20

// ErrInvalidCursor marks a malformed or foreign pagination cursor. The
// protocol never guesses: the request fails with no partial page.
var ErrInvalidCursor = errors.New("invalid cursor")

// MessageHandler serves the history pagination endpoint.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository) *MessageHandler {
	return &MessageHandler{messageRepo: messageRepo}
}

// GetMessages returns one page of a conversation's history, oldest first,
// together with the cursor for the next older page.
//
// GET /messages/:conversation_id?limit=<int>&before=<cursor>
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "conversation id is required"})
		return
	}

	limit := DefaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid limit"})
			return
		}
		limit = parsed
	}
	if limit < 1 {
		limit = 1
	}
	if limit > repositories.MaxPageLimit {
		limit = repositories.MaxPageLimit
	}

	before := c.Query("before")
	if before != "" {
		if err := h.checkCursor(c, conversationID, before); err != nil {
			if errors.Is(err, ErrInvalidCursor) {
				c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to validate cursor"})
			}
			return
		}
	}

	msgs, err := h.messageRepo.ListMessagesBefore(c.Request.Context(), conversationID, limit, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	// The page is ascending, so its first entry is the oldest: that id is
	// the lower bound for the next older page. A short page means nothing
	// older exists, so the cursor goes null and callers stop paging.
	var nextCursor *string
	if len(msgs) == limit {
		nextCursor = &msgs[0].ID
	}

	c.JSON(http.StatusOK, models.MessagePage{OK: true, Messages: msgs, NextCursor: nextCursor})
}

// checkCursor rejects cursors that do not parse as ULIDs and cursors issued
// from another conversation. An id that exists nowhere is allowed: it acts as
// a plain bound, so a bound above all stored ids equals "no cursor".
func (h *MessageHandler) checkCursor(c *gin.Context, conversationID, before string) error {
	if _, err := ulid.ParseStrict(before); err != nil {
		return ErrInvalidCursor
	}

	owner, err := h.messageRepo.GetMessageConversation(c.Request.Context(), before)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != conversationID {
		return ErrInvalidCursor
	}
	return nil
}
