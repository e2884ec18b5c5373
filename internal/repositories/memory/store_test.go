package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.CreateUser(ctx, "alice", "Alice", "hash")
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "alice", "Other", "hash")
	assert.ErrorIs(t, err, repositories.ErrUsernameTaken)
}

func TestCreateChatAllowsDuplicateDirectPair(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)
	second, err := store.CreateChat(ctx, models.NewChat{Members: []int{2, 1}})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	chats, err := store.FindChatsByMember(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID)
}

func TestCreateChatValidation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.CreateChat(ctx, models.NewChat{IsGroup: true, Members: []int{1, 2, 3}})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = store.CreateChat(ctx, models.NewChat{IsGroup: true, Name: "Team", Members: []int{1}})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = store.CreateChat(ctx, models.NewChat{Members: []int{1, 1}})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAddChatMemberIsIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	group, err := store.CreateChat(ctx, models.NewChat{IsGroup: true, Name: "Team", Members: []int{1, 2}})
	require.NoError(t, err)

	store.SetClock(func() time.Time { return base.Add(time.Minute) })
	updated, err := store.AddChatMember(ctx, group.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, updated.Members)
	assert.Equal(t, base.Add(time.Minute), updated.UpdatedAt)

	store.SetClock(func() time.Time { return base.Add(time.Hour) })
	again, err := store.AddChatMember(ctx, group.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, again.Members)
	assert.Equal(t, base.Add(time.Minute), again.UpdatedAt)

	_, err = store.AddChatMember(ctx, 99, 3)
	assert.ErrorIs(t, err, repositories.ErrChatNotFound)
}

func TestAddChatMemberRejectsDirectChat(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	direct, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)

	_, err = store.AddChatMember(ctx, direct.ID, 3)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeleteChatKeepsMessages(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	chat, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, models.NewMessage{ChatID: chat.ID, SenderID: 2, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteChat(ctx, chat.ID))
	assert.ErrorIs(t, store.DeleteChat(ctx, chat.ID), repositories.ErrChatNotFound)

	msgs, err := store.ListChatMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestUnseenCountAndMarkSeen(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	chat, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)

	for _, content := range []string{"one", "two"} {
		_, err := store.CreateMessage(ctx, models.NewMessage{ChatID: chat.ID, SenderID: 2, Content: content})
		require.NoError(t, err)
	}
	_, err = store.CreateMessage(ctx, models.NewMessage{ChatID: chat.ID, SenderID: 1, Content: "mine"})
	require.NoError(t, err)

	count, err := store.CountUnseenMessages(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	latest, err := store.FindLatestMessage(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "mine", latest.Content)

	updated, err := store.MarkSeen(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	count, err = store.CountUnseenMessages(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	updated, err = store.MarkSeen(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestFindLatestMessageAbsent(t *testing.T) {
	store := NewStore()
	latest, err := store.FindLatestMessage(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestCreateMessageDefaultsType(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	msg, err := store.CreateMessage(ctx, models.NewMessage{ChatID: 1, SenderID: 1, Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeText, msg.Type)

	_, err = store.CreateMessage(ctx, models.NewMessage{ChatID: 1, SenderID: 1, Content: "x", Type: "video"})
	assert.ErrorIs(t, err, models.ErrValidation)
}
