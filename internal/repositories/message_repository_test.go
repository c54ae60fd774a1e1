package repositories

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync-service/internal/models"
)

func TestNewMessageIDStrictlyIncreasing(t *testing.T) {
	now := time.Now()
	prev := newMessageID(now)
	for i := 0; i < 1000; i++ {
		// Same instant on purpose: the monotonic entropy must still order them.
		id := newMessageID(now)
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestNewMessageIDParses(t *testing.T) {
	id := newMessageID(time.Now())
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
}

func TestValidateNewMessage(t *testing.T) {
	cases := []struct {
		name           string
		conversationID string
		senderID       string
		text           string
		wantErr        bool
	}{
		{"valid", "c1", "u1", "hello", false},
		{"missing conversation", "", "u1", "hello", true},
		{"missing sender", "c1", "", "hello", true},
		{"missing text", "c1", "u1", "", true},
		{"blank text", "c1", "u1", "   \t ", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateNewMessage(tc.conversationID, tc.senderID, tc.text)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, clampLimit(0))
	assert.Equal(t, 1, clampLimit(-5))
	assert.Equal(t, 20, clampLimit(20))
	assert.Equal(t, MaxPageLimit, clampLimit(MaxPageLimit))
	assert.Equal(t, MaxPageLimit, clampLimit(MaxPageLimit+500))
}

func TestReverseMessages(t *testing.T) {
	msgs := []models.Message{{ID: "3"}, {ID: "2"}, {ID: "1"}}
	reverseMessages(msgs)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "2", msgs[1].ID)
	assert.Equal(t, "3", msgs[2].ID)
}
