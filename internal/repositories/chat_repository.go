package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, req models.NewChat) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	FindChatsByMember(ctx context.Context, userID int) ([]models.Chat, error)
	AddChatMember(ctx context.Context, chatID int, userID int) (models.Chat, error)
	DeleteChat(ctx context.Context, chatID int) error
	IsMember(ctx context.Context, chatID int, userID int) (bool, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, is_group, name, members, admins, group_picture, created_at, updated_at`

// CreateChat stores a new chat. Direct chats for an already-connected pair are
// not rejected here; duplicates are collapsed when listing.
func (r *ChatRepo) CreateChat(ctx context.Context, req models.NewChat) (models.Chat, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Chat{}, err
	}

	var row chatRow
	err = r.db.GetContext(ctx, &row, `INSERT INTO chats (is_group, name, members, admins, group_picture)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+chatColumns,
		req.IsGroup, req.Name, toInt64s(req.Members), toInt64s(req.Admins), req.GroupPicture)
	if err != nil {
		return models.Chat{}, err
	}
	return row.toModel(), nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var row chatRow
	err := r.db.GetContext(ctx, &row, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return row.toModel(), nil
}

// FindChatsByMember returns every chat containing the user, oldest first.
func (r *ChatRepo) FindChatsByMember(ctx context.Context, userID int) ([]models.Chat, error) {
	var rows []chatRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+chatColumns+` FROM chats WHERE members @> ARRAY[$1]::INT[] ORDER BY id ASC`, userID); err != nil {
		return nil, err
	}
	chats := make([]models.Chat, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, row.toModel())
	}
	return chats, nil
}

// AddChatMember appends a member to a group. Adding an existing member is a no-op.
func (r *ChatRepo) AddChatMember(ctx context.Context, chatID int, userID int) (models.Chat, error) {
	var row chatRow
	err := r.db.GetContext(ctx, &row, `UPDATE chats SET members = array_append(members, $2), updated_at = NOW()
        WHERE id=$1 AND is_group AND NOT ($2 = ANY(members))
        RETURNING `+chatColumns, chatID, userID)
	if err == nil {
		return row.toModel(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.HasMember(userID) {
		return chat, nil
	}
	return models.Chat{}, fmt.Errorf("%w: members cannot be added to a direct chat", models.ErrValidation)
}

// DeleteChat removes the chat row only; its messages stay in place.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// IsMember checks whether a user belongs to the chat.
func (r *ChatRepo) IsMember(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND $2 = ANY(members))`, chatID, userID)
	return exists, err
}
