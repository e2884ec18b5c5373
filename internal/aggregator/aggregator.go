// Package aggregator builds the per-user conversation list.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

// ErrAggregationFailed wraps any store failure; no partial list is returned.
var ErrAggregationFailed = errors.New("aggregation failed")

// ChatFinder lists the chats a user belongs to.
type ChatFinder interface {
	FindChatsByMember(ctx context.Context, userID int) ([]models.Chat, error)
}

// MessageStats answers the per-chat questions a summary needs.
type MessageStats interface {
	FindLatestMessage(ctx context.Context, chatID int) (*models.Message, error)
	CountUnseenMessages(ctx context.Context, chatID int, userID int) (int, error)
}

// Aggregator joins stored chats and messages into ordered chat summaries.
type Aggregator struct {
	chats       ChatFinder
	messages    MessageStats
	concurrency int
}

func New(chats ChatFinder, messages MessageStats, concurrency int) *Aggregator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Aggregator{chats: chats, messages: messages, concurrency: concurrency}
}

// ListChatsForUser returns the user's chats, one per direct pair, newest activity first.
func (a *Aggregator) ListChatsForUser(ctx context.Context, userID int) (summaries []models.ChatSummary, err error) {
	ctx, span := otel.Tracer("chat-engine/aggregator").Start(ctx, "aggregator.list_chats")
	span.SetAttributes(attribute.Int("user.id", userID))
	start := time.Now()
	defer func() {
		observability.ObserveAggregation(start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	chats, err := a.chats.FindChatsByMember(ctx, userID)
	if err != nil {
		log.Printf("aggregator find chats failed user_id=%d: %v", userID, err)
		return nil, fmt.Errorf("%w: %w", ErrAggregationFailed, err)
	}
	chats = Dedupe(chats)
	span.SetAttributes(attribute.Int("chats.count", len(chats)))

	summaries = make([]models.ChatSummary, len(chats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, chat := range chats {
		i, chat := i, chat
		g.Go(func() error {
			latest, err := a.messages.FindLatestMessage(gctx, chat.ID)
			if err != nil {
				return fmt.Errorf("latest message chat %d: %w", chat.ID, err)
			}
			unread, err := a.messages.CountUnseenMessages(gctx, chat.ID, userID)
			if err != nil {
				return fmt.Errorf("unseen count chat %d: %w", chat.ID, err)
			}

			summary := models.ChatSummary{
				Chat:        chat,
				MemberCount: len(chat.Members),
				UnreadCount: unread,
			}
			if latest != nil {
				summary.LastMessage = &models.LastMessage{
					Content:   latest.Content,
					Timestamp: latest.CreatedAt,
					SenderID:  latest.SenderID,
				}
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("aggregator summaries failed user_id=%d: %v", userID, err)
		return nil, fmt.Errorf("%w: %w", ErrAggregationFailed, err)
	}

	SortByActivity(summaries)
	return summaries, nil
}

// Dedupe keeps the first direct chat for each member pair and drops direct chats
// that do not have exactly two members. Group chats pass through untouched.
func Dedupe(chats []models.Chat) []models.Chat {
	seen := make(map[string]struct{}, len(chats))
	out := make([]models.Chat, 0, len(chats))
	for _, chat := range chats {
		if chat.IsGroup {
			out = append(out, chat)
			continue
		}
		key, ok := chat.PairKey()
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, chat)
	}
	return out
}

// SortByActivity orders summaries by last message time, newest first. Chats
// without messages go last; equal timestamps keep their input order.
func SortByActivity(summaries []models.ChatSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return lastActivity(summaries[i]).After(lastActivity(summaries[j]))
	})
}

func lastActivity(s models.ChatSummary) time.Time {
	if s.LastMessage == nil {
		return time.Time{}
	}
	return s.LastMessage.Timestamp
}
