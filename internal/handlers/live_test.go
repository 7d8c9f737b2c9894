package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/chatsync"
	"marketplace-service/internal/client"
	"marketplace-service/internal/middleware"
	"marketplace-service/internal/mocks"
	"marketplace-service/internal/models"
	"marketplace-service/internal/ws"
)

type liveServer struct {
	url      string
	verifier *auth.Verifier
	hub      *ws.Hub
}

// newLiveServer serves the room endpoints and the live channel the way main
// wires them, over mocked repositories.
func newLiveServer(t *testing.T, roomRepo *mocks.RoomRepositoryMock, messageRepo *mocks.MessageRepositoryMock, publisher *mocks.UpdatesPublisherMock) *liveServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := quietLogger()
	verifier := auth.NewVerifier("secret", time.Hour)
	hub := ws.NewHub(logger)
	rooms := NewRoomHandler(roomRepo, messageRepo, publisher, hub, logger)

	r := gin.New()
	r.GET("/ws", ws.NewHandler(hub, roomRepo, messageRepo, nil, verifier, logger).Handle)
	api := r.Group("/", middleware.AuthMiddleware(verifier, nil, logger))
	api.POST("/rooms", rooms.CreateRoom)
	api.POST("/rooms/:room_id/messages", rooms.PostMessage)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &liveServer{url: server.URL, verifier: verifier, hub: hub}
}

func (s *liveServer) session(t *testing.T, account models.Account) *chatsync.Store {
	t.Helper()
	token, err := s.verifier.Issue(account)
	require.NoError(t, err)

	me := chatsync.Identity{UserID: account.AccountID(), UserName: account.DisplayName(), Role: account.AccountRole()}
	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws"
	dial := func(ctx context.Context) (chatsync.Channel, error) {
		return client.Dial(ctx, wsURL, client.Handshake{Token: token, UserID: me.UserID, UserName: me.UserName, UserRole: string(me.Role)})
	}
	store := chatsync.NewStore(client.NewREST(s.url, token), dial, me, quietLogger())
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(store.Disconnect)
	return store
}

func TestNewRoomMessagesReachTheOtherParticipantLive(t *testing.T) {
	ctx := context.Background()
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	publisher := new(mocks.UpdatesPublisherMock)

	room := models.Room{
		ID:               "r1",
		CreatedBy:        "alice",
		Participants:     []string{"alice", "bob"},
		ParticipantNames: []string{"Alice", "Bob"},
	}
	hello := models.Message{
		ID: "m1", RoomID: "r1", SenderID: "alice", SenderName: "Alice",
		Content: "hello", Type: models.MessageText, CreatedAt: time.Now().UTC(),
	}
	roomRepo.On("CreateRoom", mock.Anything, "alice", "", []string{"bob"}).Return(room, nil).Once()
	roomRepo.On("GetRoom", mock.Anything, "r1").Return(room, nil)
	roomRepo.On("TouchRoom", mock.Anything, "r1", mock.Anything).Return(nil)
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.RoomID == "r1" && m.SenderID == "alice" && m.Content == "hello"
	})).Return(hello, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, "m1").Return(hello, nil)
	publisher.On("RoomCreated", mock.Anything).Return(nil)
	publisher.On("MessageSent", mock.Anything, mock.Anything).Return(nil)

	srv := newLiveServer(t, roomRepo, messageRepo, publisher)
	alice := srv.session(t, models.Company{ID: "alice", Name: "Alice"})
	bob := srv.session(t, models.Professional{ID: "bob", Name: "Bob"})
	require.Eventually(t, func() bool {
		return srv.hub.IsOnline("alice") && srv.hub.IsOnline("bob")
	}, 3*time.Second, 10*time.Millisecond)

	created, err := alice.CreateRoom(ctx, []string{"bob"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Bob", chatsync.RoomTitle(created, "alice"))

	require.Eventually(t, func() bool {
		_, ok := bob.Room("r1")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
	bobRoom, _ := bob.Room("r1")
	assert.Equal(t, "Alice", chatsync.RoomTitle(bobRoom, "bob"))

	_, err = alice.SendMessage(ctx, "hello", "r1", models.MessageText)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(bob.Messages("r1")) == 1
	}, 3*time.Second, 10*time.Millisecond)

	got := bob.Messages("r1")[0]
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "Alice", chatsync.SenderLabel(got, "bob"))
	bobRoom, _ = bob.Room("r1")
	assert.Equal(t, 1, bobRoom.UnreadCount)

	require.Len(t, alice.Messages("r1"), 1)
	assert.True(t, chatsync.IsOwnMessage(alice.Messages("r1")[0], "alice"))
	aliceRoom, _ := alice.Room("r1")
	assert.Zero(t, aliceRoom.UnreadCount)
}
