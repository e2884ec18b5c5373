package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories/memory"
)

func newClockedStore() *memory.Store {
	store := memory.NewStore()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	store.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	return store
}

func TestDirectChatUnreadAndPreview(t *testing.T) {
	ctx := context.Background()
	store := newClockedStore()
	chat, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, models.NewMessage{ChatID: chat.ID, SenderID: 2, Content: "hi"})
	require.NoError(t, err)

	summaries, err := New(store, store, 4).ListChatsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].UnreadCount)
	assert.Equal(t, 2, summaries[0].MemberCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "hi", summaries[0].LastMessage.Content)
	assert.Equal(t, 2, summaries[0].LastMessage.SenderID)
}

func TestDuplicateDirectChatsCollapse(t *testing.T) {
	ctx := context.Background()
	store := newClockedStore()
	first, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)
	_, err = store.CreateChat(ctx, models.NewChat{Members: []int{2, 1}})
	require.NoError(t, err)

	agg := New(store, store, 2)
	for _, userID := range []int{1, 2} {
		summaries, err := agg.ListChatsForUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, first.ID, summaries[0].ID)
	}
}

func TestUnreadGrowsOnlyForRecipient(t *testing.T) {
	ctx := context.Background()
	store := newClockedStore()
	chat, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)
	agg := New(store, store, 2)

	unread := func(userID int) int {
		summaries, err := agg.ListChatsForUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		return summaries[0].UnreadCount
	}

	beforeA, beforeB := unread(1), unread(2)
	_, err = store.CreateMessage(ctx, models.NewMessage{ChatID: chat.ID, SenderID: 2, Content: "ping"})
	require.NoError(t, err)
	assert.Equal(t, beforeA+1, unread(1))
	assert.Equal(t, beforeB, unread(2))

	_, err = store.MarkSeen(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, unread(1))
}

func TestGroupsAreNeverDeduplicated(t *testing.T) {
	ctx := context.Background()
	store := newClockedStore()
	for i := 0; i < 2; i++ {
		_, err := store.CreateChat(ctx, models.NewChat{IsGroup: true, Name: "Team", Members: []int{1, 2}})
		require.NoError(t, err)
	}

	summaries, err := New(store, store, 1).ListChatsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestSortNewestFirstEmptyLast(t *testing.T) {
	ctx := context.Background()
	store := newClockedStore()
	quiet, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 4}})
	require.NoError(t, err)
	older, err := store.CreateChat(ctx, models.NewChat{Members: []int{1, 2}})
	require.NoError(t, err)
	newer, err := store.CreateChat(ctx, models.NewChat{IsGroup: true, Name: "Team", Members: []int{1, 2, 3}})
	require.NoError(t, err)

	_, err = store.CreateMessage(ctx, models.NewMessage{ChatID: older.ID, SenderID: 2, Content: "first"})
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, models.NewMessage{ChatID: newer.ID, SenderID: 3, Content: "second"})
	require.NoError(t, err)

	summaries, err := New(store, store, 3).ListChatsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, []int{newer.ID, older.ID, quiet.ID}, []int{summaries[0].ID, summaries[1].ID, summaries[2].ID})
	assert.Nil(t, summaries[2].LastMessage)
	assert.Equal(t, 3, summaries[0].MemberCount)
}

func TestSortByActivityIsStable(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	summaries := []models.ChatSummary{
		{Chat: models.Chat{ID: 1}},
		{Chat: models.Chat{ID: 2}, LastMessage: &models.LastMessage{Timestamp: ts}},
		{Chat: models.Chat{ID: 3}},
		{Chat: models.Chat{ID: 4}, LastMessage: &models.LastMessage{Timestamp: ts}},
	}
	SortByActivity(summaries)
	ids := make([]int, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int{2, 4, 1, 3}, ids)
}

func TestDedupeDropsMalformedDirectChats(t *testing.T) {
	chats := []models.Chat{
		{ID: 1, Members: []int{1, 2, 3}},
		{ID: 2, Members: []int{2, 1}},
		{ID: 3, Members: []int{1, 2}},
		{ID: 4, IsGroup: true, Members: []int{1, 2}},
	}
	out := Dedupe(chats)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].ID)
	assert.Equal(t, 4, out[1].ID)
}

func TestStoreFailureIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)

	chats.On("FindChatsByMember", mock.Anything, 1).Return([]models.Chat{
		{ID: 10, Members: []int{1, 2}},
		{ID: 11, Members: []int{1, 3}},
	}, nil)
	messages.On("FindLatestMessage", mock.Anything, 10).Return(&models.Message{ID: 1, ChatID: 10, Content: "ok"}, nil).Maybe()
	messages.On("CountUnseenMessages", mock.Anything, 10, 1).Return(0, nil).Maybe()
	messages.On("FindLatestMessage", mock.Anything, 11).Return((*models.Message)(nil), errors.New("db down"))

	summaries, err := New(chats, messages, 2).ListChatsForUser(ctx, 1)
	assert.ErrorIs(t, err, ErrAggregationFailed)
	assert.Nil(t, summaries)
	chats.AssertExpectations(t)
}

func TestFindChatsFailure(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	chats.On("FindChatsByMember", mock.Anything, 1).Return([]models.Chat(nil), errors.New("timeout"))

	_, err := New(chats, new(mocks.MessageRepositoryMock), 2).ListChatsForUser(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAggregationFailed)
}
