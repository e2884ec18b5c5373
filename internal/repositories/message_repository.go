package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, req models.NewMessage) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error)
	FindLatestMessage(ctx context.Context, chatID int) (*models.Message, error)
	CountUnseenMessages(ctx context.Context, chatID int, userID int) (int, error)
	MarkSeen(ctx context.Context, chatID int, userID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, content, type, seen_by, created_at`

// CreateMessage stores a message.
func (r *MessageRepo) CreateMessage(ctx context.Context, req models.NewMessage) (models.Message, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Message{}, err
	}
	var row messageRow
	err = r.db.GetContext(ctx, &row, `INSERT INTO messages (chat_id, sender_id, content, type) VALUES ($1, $2, $3, $4) RETURNING `+messageColumns,
		req.ChatID, req.SenderID, req.Content, string(req.Type))
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// ListChatMessages returns the chat history oldest first.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at ASC, id ASC`, chatID); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}

// FindLatestMessage returns the newest message of a chat, or nil when it has none.
func (r *MessageRepo) FindLatestMessage(ctx context.Context, chatID int) (*models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg := row.toModel()
	return &msg, nil
}

// CountUnseenMessages counts messages from other senders the user has not seen.
func (r *MessageRepo) CountUnseenMessages(ctx context.Context, chatID int, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE chat_id=$1 AND sender_id<>$2 AND NOT ($2 = ANY(seen_by))`, chatID, userID)
	return count, err
}

// MarkSeen adds the user to the seen-by set of every unseen message from other senders.
func (r *MessageRepo) MarkSeen(ctx context.Context, chatID int, userID int) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET seen_by = array_append(seen_by, $2)
        WHERE chat_id=$1 AND sender_id<>$2 AND NOT ($2 = ANY(seen_by))`, chatID, userID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}
