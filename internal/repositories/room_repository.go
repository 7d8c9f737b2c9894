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

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrNoParticipants = errors.New("room needs at least one other participant")
	ErrNotParticipant = errors.New("user is not a room participant")
)

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, creatorID string, name string, participantIDs []string) (models.Room, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	IsParticipant(ctx context.Context, roomID string, userID string) (bool, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
	RemoveParticipant(ctx context.Context, roomID string, userID string) error
	MarkRead(ctx context.Context, roomID string, userID string, at time.Time) error
	TouchRoom(ctx context.Context, roomID string, at time.Time) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom creates a room and its participant list atomically. The creator is
// always the first participant; duplicates are dropped keeping first position.
func (r *RoomRepo) CreateRoom(ctx context.Context, creatorID string, name string, participantIDs []string) (models.Room, error) {
	ids := orderedParticipants(creatorID, participantIDs)
	if len(ids) < 2 {
		return models.Room{}, ErrNoParticipants
	}

	roomID := uuid.NewString()
	err := atomic(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := execBuilt(ctx, tx, psql.Insert("rooms").
			Columns("id", "name", "created_by").
			Values(roomID, name, creatorID)); err != nil {
			return err
		}

		insert := psql.Insert("room_participants").Columns("room_id", "user_id", "position")
		for pos, id := range ids {
			insert = insert.Values(roomID, id, pos)
		}
		_, err := execBuilt(ctx, tx, insert)
		return err
	})
	if err != nil {
		return models.Room{}, err
	}
	return r.GetRoom(ctx, roomID)
}

// GetRoom fetches a room with its participants and last message.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := getBuilt(ctx, r.db, &room, psql.Select("id", "name", "created_by", "created_at", "updated_at").
		From("rooms").
		Where(sq.Eq{"id": roomID}))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, err
	}

	rooms := []models.Room{room}
	if err := r.hydrate(ctx, rooms, ""); err != nil {
		return models.Room{}, err
	}
	return rooms[0], nil
}

// IsParticipant checks membership.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// ListRoomsForUser returns the user's rooms, most recently updated first, with
// unread counts computed for that user.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	err := selectBuilt(ctx, r.db, &rooms, psql.Select("r.id", "r.name", "r.created_by", "r.created_at", "r.updated_at").
		From("rooms r").
		Join("room_participants p ON p.room_id = r.id").
		Where(sq.Eq{"p.user_id": userID}).
		OrderBy("r.updated_at DESC"))
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []models.Room{}, nil
	}
	if err := r.hydrate(ctx, rooms, userID); err != nil {
		return nil, err
	}
	return rooms, nil
}

// RemoveParticipant drops userID from the room.
func (r *RoomRepo) RemoveParticipant(ctx context.Context, roomID string, userID string) error {
	res, err := execBuilt(ctx, r.db, psql.Delete("room_participants").
		Where(sq.Eq{"room_id": roomID, "user_id": userID}))
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotParticipant
	}
	return nil
}

// MarkRead advances the user's read marker and flags messages from other
// senders up to at as read. The marker never moves backwards.
func (r *RoomRepo) MarkRead(ctx context.Context, roomID string, userID string, at time.Time) error {
	return atomic(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE room_participants SET last_read_at = GREATEST(last_read_at, $3) WHERE room_id=$1 AND user_id=$2`, roomID, userID, at)
		if err != nil {
			return err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotParticipant
		}
		_, err = execBuilt(ctx, tx, psql.Update("messages").
			Set("read", true).
			Where(sq.Eq{"room_id": roomID, "read": false}).
			Where(sq.NotEq{"sender_id": userID}).
			Where(sq.LtOrEq{"created_at": at}))
		return err
	})
}

// TouchRoom bumps the room's updated_at.
func (r *RoomRepo) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	_, err := execBuilt(ctx, r.db, psql.Update("rooms").Set("updated_at", at).Where(sq.Eq{"id": roomID}))
	return err
}

// hydrate fills participants, last message and (when viewerID is set) unread
// counts on rooms in place.
func (r *RoomRepo) hydrate(ctx context.Context, rooms []models.Room, viewerID string) error {
	ids := make([]string, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}

	var participants []models.Participant
	if err := selectBuilt(ctx, r.db, &participants, psql.Select(
		"rp.room_id", "rp.user_id", "COALESCE(u.name, '') AS user_name", "COALESCE(u.avatar_url, '') AS avatar_url",
		"rp.joined_at", "rp.last_read_at").
		From("room_participants rp").
		LeftJoin("users u ON u.id = rp.user_id").
		Where(sq.Eq{"rp.room_id": ids}).
		OrderBy("rp.room_id", "rp.position")); err != nil {
		return err
	}

	var last []models.Message
	if err := selectBuilt(ctx, r.db, &last, psql.Select(messageColumns...).
		Options("DISTINCT ON (room_id)").
		From("messages").
		Where(sq.Eq{"room_id": ids}).
		OrderBy("room_id", "created_at DESC")); err != nil {
		return err
	}

	unread := map[string]int{}
	if viewerID != "" {
		var counts []struct {
			RoomID string `db:"room_id"`
			Count  int    `db:"unread"`
		}
		if err := selectBuilt(ctx, r.db, &counts, psql.Select("m.room_id", "COUNT(*) AS unread").
			From("messages m").
			Join("room_participants p ON p.room_id = m.room_id AND p.user_id = ?", viewerID).
			Where(sq.Eq{"m.room_id": ids}).
			Where(sq.NotEq{"m.sender_id": viewerID}).
			Where("m.created_at > p.last_read_at").
			GroupBy("m.room_id")); err != nil {
			return err
		}
		for _, c := range counts {
			unread[c.RoomID] = c.Count
		}
	}

	byRoom := map[string][]models.Participant{}
	for _, p := range participants {
		byRoom[p.RoomID] = append(byRoom[p.RoomID], p)
	}
	lastByRoom := map[string]models.Message{}
	for _, m := range last {
		lastByRoom[m.RoomID] = m
	}

	for i := range rooms {
		room := &rooms[i]
		room.Participants = []string{}
		room.ParticipantNames = []string{}
		room.ParticipantAvatars = []string{}
		for _, p := range byRoom[room.ID] {
			room.Participants = append(room.Participants, p.UserID)
			room.ParticipantNames = append(room.ParticipantNames, p.Name)
			room.ParticipantAvatars = append(room.ParticipantAvatars, p.Avatar)
		}
		if m, ok := lastByRoom[room.ID]; ok {
			msg := m
			room.LastMessage = &msg
		}
		room.UnreadCount = unread[room.ID]
	}
	return nil
}

func orderedParticipants(creatorID string, participantIDs []string) []string {
	seen := map[string]struct{}{creatorID: {}}
	ids := []string{creatorID}
	for _, id := range participantIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
