package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"marketplace-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const defaultHistoryLimit = 200

var messageColumns = []string{"id", "room_id", "sender_id", "sender_name", "sender_avatar", "content", "type", "created_at", "read"}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListMessages(ctx context.Context, roomID string, before *time.Time, limit uint64) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. The id and creation time are assigned here.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Type == "" {
		msg.Type = models.MessageText
	}

	query, args, err := psql.Insert("messages").
		Columns("id", "room_id", "sender_id", "sender_name", "sender_avatar", "content", "type").
		Values(msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.SenderAvatar, msg.Content, msg.Type).
		Suffix("RETURNING id, room_id, sender_id, sender_name, sender_avatar, content, type, created_at, read").
		ToSql()
	if err != nil {
		return models.Message{}, err
	}

	var stored models.Message
	err = r.db.QueryRowxContext(ctx, query, args...).StructScan(&stored)
	return stored, err
}

// ListMessages returns up to limit messages of a room in ascending creation
// order. With before set, the newest messages older than before are returned.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID string, before *time.Time, limit uint64) ([]models.Message, error) {
	if limit == 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}

	q := psql.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"room_id": roomID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit)
	if before != nil {
		q = q.Where(sq.Lt{"created_at": *before})
	}

	var msgs []models.Message
	if err := selectBuilt(ctx, r.db, &msgs, q); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := getBuilt(ctx, r.db, &msg, psql.Select(messageColumns...).From("messages").Where(sq.Eq{"id": messageID}))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
