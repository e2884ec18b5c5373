package repositories

import (
	"errors"
	"time"

	"github.com/lib/pq"

	"chat-engine/internal/models"
)

const uniqueViolation = "23505"

type chatRow struct {
	ID           int           `db:"id"`
	IsGroup      bool          `db:"is_group"`
	Name         string        `db:"name"`
	Members      pq.Int64Array `db:"members"`
	Admins       pq.Int64Array `db:"admins"`
	GroupPicture string        `db:"group_picture"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

func (r chatRow) toModel() models.Chat {
	return models.Chat{
		ID:           r.ID,
		IsGroup:      r.IsGroup,
		Name:         r.Name,
		Members:      toInts(r.Members),
		Admins:       toInts(r.Admins),
		GroupPicture: r.GroupPicture,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type messageRow struct {
	ID        int           `db:"id"`
	ChatID    int           `db:"chat_id"`
	SenderID  int           `db:"sender_id"`
	Content   string        `db:"content"`
	Type      string        `db:"type"`
	SeenBy    pq.Int64Array `db:"seen_by"`
	CreatedAt time.Time     `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	return models.Message{
		ID:        r.ID,
		ChatID:    r.ChatID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		Type:      models.MessageType(r.Type),
		SeenBy:    toInts(r.SeenBy),
		CreatedAt: r.CreatedAt,
	}
}

func toInts(arr pq.Int64Array) []int {
	out := make([]int, 0, len(arr))
	for _, v := range arr {
		out = append(out, int(v))
	}
	return out
}

func toInt64s(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
