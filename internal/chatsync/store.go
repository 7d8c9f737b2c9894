package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"marketplace-service/internal/models"
)

var (
	ErrEmptyMessage   = errors.New("message content is empty")
	ErrNotAnImage     = errors.New("attachment is not an image")
	ErrDisconnected   = errors.New("live channel disconnected")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrStaleEvent     = errors.New("event from a closed channel")
)

// API is the REST surface the store persists through.
type API interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	CreateRoom(ctx context.Context, participantIDs []string, name string) (models.Room, error)
	LeaveRoom(ctx context.Context, roomID string) error
	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)
	SendMessage(ctx context.Context, roomID, content string, msgType models.MessageType) (models.Message, error)
	MarkRead(ctx context.Context, roomID string) error
}

// Channel is a live event connection.
type Channel interface {
	Emit(event string, data any) error
	Events() <-chan models.Envelope
	Close() error
}

// DialFunc opens a live channel for the session.
type DialFunc func(ctx context.Context) (Channel, error)

// Identity is the local viewer.
type Identity struct {
	UserID   string
	UserName string
	Role     models.Role
}

// Attachment is an uploaded file referenced by a message.
type Attachment struct {
	URL      string
	MIMEType string
}

// Store keeps the local view of rooms, messages and presence for one session,
// reconciling REST results with live channel events.
type Store struct {
	api      API
	dial     DialFunc
	me       Identity
	validate *validator.Validate
	logger   logrus.FieldLogger
	now      func() time.Time

	mu         sync.Mutex
	channel    Channel
	rooms      []models.Room
	activeRoom string
	messages   map[string][]models.Message
	presence   map[string]models.ChatUser
	connErr    error
	err        error

	changes chan struct{}
}

// NewStore constructs a Store for the session of me.
func NewStore(api API, dial DialFunc, me Identity, logger logrus.FieldLogger) *Store {
	return &Store{
		api:      api,
		dial:     dial,
		me:       me,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
		messages: make(map[string][]models.Message),
		presence: make(map[string]models.ChatUser),
		changes:  make(chan struct{}, 1),
	}
}

// Changes signals after every state change. Signals coalesce.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Connect opens the live channel. It does nothing when already connected. A
// failure is recorded as the connection error and local state is kept.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.channel != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ch, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.connErr = err
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.mu.Lock()
	if s.channel != nil {
		s.mu.Unlock()
		_ = ch.Close()
		return nil
	}
	s.channel = ch
	s.connErr = nil
	roomIDs := s.roomIDsLocked()
	s.mu.Unlock()

	go s.pump(ch)
	for _, id := range roomIDs {
		s.emit(models.EventJoinRoom, models.RoomRef{RoomID: id})
	}
	s.notify()
	return nil
}

// Connected reports whether the live channel is open.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel != nil
}

// Disconnect closes the channel and discards the session state.
func (s *Store) Disconnect() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.rooms = nil
	s.activeRoom = ""
	s.messages = make(map[string][]models.Message)
	s.presence = make(map[string]models.ChatUser)
	s.connErr = nil
	s.err = nil
	s.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	s.notify()
}

func (s *Store) pump(ch Channel) {
	for envelope := range ch.Events() {
		if err := s.handleEvent(envelope, ch); err != nil {
			s.logger.WithError(err).WithField("event", envelope.Event).Debug("dropping live event")
		}
	}

	s.mu.Lock()
	if s.channel == ch {
		s.channel = nil
		s.connErr = ErrDisconnected
		if withErr, ok := ch.(interface{ Err() error }); ok && withErr.Err() != nil {
			s.connErr = fmt.Errorf("%w: %v", ErrDisconnected, withErr.Err())
		}
	}
	s.mu.Unlock()
	s.notify()
}

// emit sends a best-effort event. Failures are logged and dropped.
func (s *Store) emit(event string, data any) {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		s.logger.WithField("event", event).Debug("live channel not connected, skipping emit")
		return
	}
	if err := ch.Emit(event, data); err != nil {
		s.logger.WithError(err).WithField("event", event).Debug("live emit failed")
	}
}

// fail records err as the shared error and returns it.
func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Store) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// LoadRooms replaces the room list with the server's and subscribes to each room.
func (s *Store) LoadRooms(ctx context.Context) error {
	rooms, err := s.api.ListRooms(ctx)
	if err != nil {
		return s.fail(err)
	}
	for _, room := range rooms {
		if err := s.check(room); err != nil {
			return s.fail(err)
		}
	}

	s.mu.Lock()
	s.rooms = append([]models.Room(nil), rooms...)
	if s.activeRoom != "" && s.roomIndexLocked(s.activeRoom) < 0 {
		s.activeRoom = ""
	}
	s.mu.Unlock()

	for _, room := range rooms {
		s.emit(models.EventJoinRoom, models.RoomRef{RoomID: room.ID})
	}
	s.notify()
	return nil
}

// CreateRoom creates a room through the API, adds it locally and subscribes.
// On failure nothing is added.
func (s *Store) CreateRoom(ctx context.Context, participantIDs []string, name string) (models.Room, error) {
	room, err := s.api.CreateRoom(ctx, participantIDs, name)
	if err != nil {
		return models.Room{}, s.fail(err)
	}
	if err := s.check(room); err != nil {
		return models.Room{}, s.fail(err)
	}

	s.mu.Lock()
	s.upsertRoomLocked(room)
	s.mu.Unlock()

	s.emit(models.EventJoinRoom, models.RoomRef{RoomID: room.ID})
	s.notify()
	return room, nil
}

// SelectRoom makes roomID the active room and loads its history.
// The active room is left unchanged when the history fetch fails.
func (s *Store) SelectRoom(ctx context.Context, roomID string) error {
	history, err := s.api.ListMessages(ctx, roomID)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.activeRoom = roomID
	for _, msg := range history {
		if err := s.check(msg); err != nil {
			s.logger.WithError(err).WithField("message_id", msg.ID).Debug("skipping invalid history message")
			continue
		}
		s.appendMessageLocked(msg)
	}
	s.mu.Unlock()

	s.emit(models.EventJoinRoom, models.RoomRef{RoomID: roomID})
	s.notify()
	return nil
}

// LeaveRoom leaves roomID through the API and drops it locally.
func (s *Store) LeaveRoom(ctx context.Context, roomID string) error {
	if err := s.api.LeaveRoom(ctx, roomID); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.removeRoomLocked(roomID)
	s.mu.Unlock()

	s.emit(models.EventLeaveRoom, models.RoomRef{RoomID: roomID})
	s.notify()
	return nil
}

// SendMessage persists a message and then fans it out over the live channel.
// Blank content is rejected before any network call.
func (s *Store) SendMessage(ctx context.Context, content, roomID string, msgType models.MessageType) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if msgType == "" {
		msgType = models.MessageText
	}

	msg, err := s.api.SendMessage(ctx, roomID, content, msgType)
	if err != nil {
		return models.Message{}, s.fail(err)
	}
	if err := s.check(msg); err != nil {
		return models.Message{}, s.fail(err)
	}

	s.mu.Lock()
	s.mergeMessageLocked(msg)
	s.mu.Unlock()

	s.emit(models.EventSendMessage, msg)
	s.notify()
	return msg, nil
}

// SendAttachment sends a file or image message referencing an uploaded file.
// Image messages must carry an image MIME type.
func (s *Store) SendAttachment(ctx context.Context, roomID string, att Attachment, msgType models.MessageType) (models.Message, error) {
	if msgType != models.MessageFile && msgType != models.MessageImage {
		return models.Message{}, fmt.Errorf("%w: %q is not an attachment type", ErrInvalidPayload, msgType)
	}
	if msgType == models.MessageImage {
		mediaType, _, err := mime.ParseMediaType(att.MIMEType)
		if err != nil || !strings.HasPrefix(mediaType, "image/") {
			return models.Message{}, ErrNotAnImage
		}
	}
	return s.SendMessage(ctx, att.URL, roomID, msgType)
}

// MarkAsRead persists the read marker, zeroes the local unread count and
// notifies peers.
func (s *Store) MarkAsRead(ctx context.Context, roomID string) error {
	if err := s.api.MarkRead(ctx, roomID); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	if i := s.roomIndexLocked(roomID); i >= 0 {
		s.rooms[i].UnreadCount = 0
	}
	msgs := s.messages[roomID]
	for i := range msgs {
		if msgs[i].SenderID != s.me.UserID {
			msgs[i].Read = true
		}
	}
	s.mu.Unlock()

	s.emit(models.EventMarkRead, models.RoomRef{RoomID: roomID})
	s.notify()
	return nil
}

// HandleEvent applies one live event. Payloads are validated before use.
func (s *Store) HandleEvent(envelope models.Envelope) error {
	return s.handleEvent(envelope, nil)
}

// handleEvent applies envelope. When from is set, the event is dropped unless
// from is still the session's channel.
func (s *Store) handleEvent(envelope models.Envelope, from Channel) error {
	if envelope.Event == models.EventError {
		var rejected models.ErrorEvent
		_ = json.Unmarshal(envelope.Data, &rejected)
		s.logger.WithFields(logrus.Fields{"event": rejected.Event, "reason": rejected.Error}).Debug("live event rejected by server")
		return nil
	}

	apply, err := s.prepare(envelope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if from != nil && s.channel != from {
		s.mu.Unlock()
		return ErrStaleEvent
	}
	join := apply()
	s.mu.Unlock()

	if join != "" {
		s.emit(models.EventJoinRoom, models.RoomRef{RoomID: join})
	}
	s.notify()
	return nil
}

// prepare decodes envelope and returns the state change to run under s.mu.
// The change returns a room id to subscribe to, if any.
func (s *Store) prepare(envelope models.Envelope) (func() string, error) {
	switch envelope.Event {
	case models.EventMessage:
		var msg models.Message
		if err := s.decode(envelope, &msg); err != nil {
			return nil, err
		}
		return func() string {
			s.mergeMessageLocked(msg)
			return ""
		}, nil
	case models.EventRoomCreated, models.EventRoomJoined:
		var room models.Room
		if err := s.decode(envelope, &room); err != nil {
			return nil, err
		}
		created := envelope.Event == models.EventRoomCreated
		return func() string {
			known := s.roomIndexLocked(room.ID) >= 0
			s.upsertRoomLocked(room)
			if created && !known {
				return room.ID
			}
			return ""
		}, nil
	case models.EventRoomLeft:
		var left models.RoomLeft
		if err := s.decode(envelope, &left); err != nil {
			return nil, err
		}
		return func() string {
			s.removeRoomLocked(left.RoomID)
			return ""
		}, nil
	case models.EventUserOnline, models.EventUserOffline:
		var user models.ChatUser
		if err := s.decode(envelope, &user); err != nil {
			return nil, err
		}
		user.Online = envelope.Event == models.EventUserOnline
		if !user.Online && user.LastSeen == nil {
			seen := s.now().UTC()
			user.LastSeen = &seen
		}
		return func() string {
			s.presence[user.ID] = user
			return ""
		}, nil
	case models.EventOnlineUsers:
		var users []models.ChatUser
		if err := json.Unmarshal(envelope.Data, &users); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		for _, user := range users {
			if err := s.check(user); err != nil {
				return nil, err
			}
		}
		return func() string {
			for _, user := range users {
				user.Online = true
				s.presence[user.ID] = user
			}
			return ""
		}, nil
	case models.EventMessagesRead:
		var read models.MessagesRead
		if err := s.decode(envelope, &read); err != nil {
			return nil, err
		}
		return func() string {
			msgs := s.messages[read.RoomID]
			for i := range msgs {
				if msgs[i].SenderID == read.ReaderID {
					continue
				}
				if !read.ReadAt.IsZero() && msgs[i].CreatedAt.After(read.ReadAt) {
					continue
				}
				msgs[i].Read = true
			}
			return ""
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidPayload, envelope.Event)
}

func (s *Store) decode(envelope models.Envelope, dest any) error {
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return s.check(dest)
}

// mergeMessageLocked adds msg unless a message with its id is already known,
// then updates the owning room. It reports whether msg was new.
func (s *Store) mergeMessageLocked(msg models.Message) bool {
	if !s.appendMessageLocked(msg) {
		return false
	}
	i := s.roomIndexLocked(msg.RoomID)
	if i < 0 {
		return true
	}
	room := &s.rooms[i]
	if room.LastMessage == nil || !msg.CreatedAt.Before(room.LastMessage.CreatedAt) {
		last := msg
		room.LastMessage = &last
	}
	if msg.CreatedAt.After(room.UpdatedAt) {
		room.UpdatedAt = msg.CreatedAt
	}
	if msg.SenderID != s.me.UserID {
		room.UnreadCount++
	}
	return true
}

func (s *Store) appendMessageLocked(msg models.Message) bool {
	for _, existing := range s.messages[msg.RoomID] {
		if existing.ID == msg.ID {
			return false
		}
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return true
}

// upsertRoomLocked replaces a known room by id, keeping the locally tracked
// unread count and the newer last message.
func (s *Store) upsertRoomLocked(room models.Room) {
	i := s.roomIndexLocked(room.ID)
	if i < 0 {
		s.rooms = append(s.rooms, room)
		return
	}
	existing := s.rooms[i]
	room.UnreadCount = existing.UnreadCount
	if existing.LastMessage != nil && (room.LastMessage == nil || room.LastMessage.CreatedAt.Before(existing.LastMessage.CreatedAt)) {
		room.LastMessage = existing.LastMessage
	}
	if existing.UpdatedAt.After(room.UpdatedAt) {
		room.UpdatedAt = existing.UpdatedAt
	}
	s.rooms[i] = room
}

func (s *Store) removeRoomLocked(roomID string) {
	if i := s.roomIndexLocked(roomID); i >= 0 {
		s.rooms = append(s.rooms[:i], s.rooms[i+1:]...)
	}
	delete(s.messages, roomID)
	if s.activeRoom == roomID {
		s.activeRoom = ""
	}
}

func (s *Store) roomIndexLocked(roomID string) int {
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			return i
		}
	}
	return -1
}

func (s *Store) roomIDsLocked() []string {
	ids := make([]string, 0, len(s.rooms))
	for _, room := range s.rooms {
		ids = append(ids, room.ID)
	}
	return ids
}

// Rooms returns a copy of the room list.
func (s *Store) Rooms() []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Room(nil), s.rooms...)
}

// Room returns the room with roomID.
func (s *Store) Room(roomID string) (models.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.roomIndexLocked(roomID); i >= 0 {
		return s.rooms[i], true
	}
	return models.Room{}, false
}

// ActiveRoom returns the selected room id, or "".
func (s *Store) ActiveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoom
}

// Messages returns a copy of the messages known for roomID in arrival order.
// Use GroupByDay for display order.
func (s *Store) Messages(roomID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages[roomID]...)
}

// Presence returns the presence record of userID.
func (s *Store) Presence(userID string) (models.ChatUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.presence[userID]
	return user, ok
}

// OnlineUsers returns the users currently marked online.
func (s *Store) OnlineUsers() []models.ChatUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.ChatUser, 0, len(s.presence))
	for _, user := range s.presence {
		if user.Online {
			users = append(users, user)
		}
	}
	return users
}

// ConnectionError returns the last channel failure, cleared by a successful Connect.
func (s *Store) ConnectionError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connErr
}

// Error returns the last failed durable operation.
func (s *Store) Error() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ClearError resets the shared error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// Me returns the local viewer.
func (s *Store) Me() Identity {
	return s.me
}
