package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/middleware"
	"marketplace-service/internal/mocks"
	"marketplace-service/internal/models"
	"marketplace-service/internal/repositories"
	"marketplace-service/internal/ws"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func withAccount(account models.Account) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, account.AccountID())
		c.Set(middleware.ContextAccount, account)
		c.Next()
	}
}

func setupRoomRouter(handler *RoomHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withAccount(models.Company{ID: "alice", Name: "Alice"}))
	r.GET("/rooms", handler.ListRooms)
	r.POST("/rooms", handler.CreateRoom)
	r.DELETE("/rooms/:room_id/me", handler.LeaveRoom)
	r.GET("/rooms/:room_id/messages", handler.GetMessages)
	r.POST("/rooms/:room_id/messages", handler.PostMessage)
	r.POST("/rooms/:room_id/read", handler.MarkRead)
	return r
}

func newRoomFixture() (*RoomHandler, *mocks.RoomRepositoryMock, *mocks.MessageRepositoryMock, *mocks.UpdatesPublisherMock) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	publisher := new(mocks.UpdatesPublisherMock)
	logger := quietLogger()
	handler := NewRoomHandler(roomRepo, messageRepo, publisher, ws.NewHub(logger), logger)
	return handler, roomRepo, messageRepo, publisher
}

func serve(router *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListRoomsSuccess(t *testing.T) {
	handler, roomRepo, _, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	roomRepo.On("ListRoomsForUser", mock.Anything, "alice").Return([]models.Room{{ID: "r1", Participants: []string{"alice", "bob"}}}, nil).Once()

	rec := serve(router, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rooms []models.Room `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, "r1", resp.Rooms[0].ID)
	roomRepo.AssertExpectations(t)
}

func TestListRoomsRepoError(t *testing.T) {
	handler, roomRepo, _, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	roomRepo.On("ListRoomsForUser", mock.Anything, "alice").Return(([]models.Room)(nil), assert.AnError).Once()

	rec := serve(router, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestCreateRoomSuccess(t *testing.T) {
	handler, roomRepo, _, publisher := newRoomFixture()
	router := setupRoomRouter(handler)

	room := models.Room{ID: "r1", CreatedBy: "alice", Participants: []string{"alice", "bob"}}
	roomRepo.On("CreateRoom", mock.Anything, "alice", "", []string{"bob"}).Return(room, nil).Once()
	publisher.On("RoomCreated", room).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/rooms", `{"participant_ids":["bob"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got models.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "r1", got.ID)
	roomRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestCreateRoomPublishFailureStillCreates(t *testing.T) {
	handler, roomRepo, _, publisher := newRoomFixture()
	router := setupRoomRouter(handler)

	room := models.Room{ID: "r1", Participants: []string{"alice", "bob"}}
	roomRepo.On("CreateRoom", mock.Anything, "alice", "Launch", []string{"bob"}).Return(room, nil).Once()
	publisher.On("RoomCreated", room).Return(assert.AnError).Once()

	rec := serve(router, http.MethodPost, "/rooms", `{"participant_ids":["bob"],"name":" Launch "}`)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateRoomValidation(t *testing.T) {
	handler, roomRepo, _, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	rec := serve(router, http.MethodPost, "/rooms", `{"participant_ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	roomRepo.On("CreateRoom", mock.Anything, "alice", "", []string{"alice"}).Return(models.Room{}, repositories.ErrNoParticipants).Once()
	rec = serve(router, http.MethodPost, "/rooms", `{"participant_ids":["alice"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestLeaveRoom(t *testing.T) {
	handler, roomRepo, _, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	roomRepo.On("RemoveParticipant", mock.Anything, "r1", "alice").Return(nil).Once()
	rec := serve(router, http.MethodDelete, "/rooms/r1/me", "")
	require.Equal(t, http.StatusOK, rec.Code)

	roomRepo.On("RemoveParticipant", mock.Anything, "r2", "alice").Return(repositories.ErrNotParticipant).Once()
	rec = serve(router, http.MethodDelete, "/rooms/r2/me", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestGetMessagesForbidden(t *testing.T) {
	handler, roomRepo, messageRepo, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	roomRepo.On("IsParticipant", mock.Anything, "r1", "alice").Return(false, nil).Once()

	rec := serve(router, http.MethodGet, "/rooms/r1/messages", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessagesPaging(t *testing.T) {
	handler, roomRepo, messageRepo, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	before := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	roomRepo.On("IsParticipant", mock.Anything, "r1", "alice").Return(true, nil)
	messageRepo.On("ListMessages", mock.Anything, "r1", mock.MatchedBy(func(at *time.Time) bool { return at != nil && at.Equal(before) }), uint64(20)).
		Return([]models.Message{{ID: "m1", RoomID: "r1"}}, nil).Once()

	rec := serve(router, http.MethodGet, "/rooms/r1/messages?limit=20&before=2024-05-01T12:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	messageRepo.AssertExpectations(t)

	rec = serve(router, http.MethodGet, "/rooms/r1/messages?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageSuccess(t *testing.T) {
	handler, roomRepo, messageRepo, publisher := newRoomFixture()
	router := setupRoomRouter(handler)

	room := models.Room{ID: "r1", Participants: []string{"alice", "bob"}}
	stored := models.Message{ID: "m1", RoomID: "r1", SenderID: "alice", SenderName: "Alice", Content: "hello", Type: models.MessageText, CreatedAt: time.Now()}

	roomRepo.On("GetRoom", mock.Anything, "r1").Return(room, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, models.Message{
		RoomID: "r1", SenderID: "alice", SenderName: "Alice", Content: "hello", Type: models.MessageText,
	}).Return(stored, nil).Once()
	roomRepo.On("TouchRoom", mock.Anything, "r1", stored.CreatedAt).Return(nil).Once()
	publisher.On("MessageSent", stored, []string{"bob"}).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/rooms/r1/messages", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	roomRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestPostMessageRejectsBlank(t *testing.T) {
	handler, roomRepo, messageRepo, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "r1").Return(models.Room{ID: "r1", Participants: []string{"alice", "bob"}}, nil)

	rec := serve(router, http.MethodPost, "/rooms/r1/messages", `{"content":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/rooms/r1/messages", `{"content":"x","type":"video"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestPostMessageNotParticipant(t *testing.T) {
	handler, roomRepo, _, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "r1").Return(models.Room{ID: "r1", Participants: []string{"bob", "carol"}}, nil).Once()
	rec := serve(router, http.MethodPost, "/rooms/r1/messages", `{"content":"hi"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	roomRepo.On("GetRoom", mock.Anything, "missing").Return(models.Room{}, repositories.ErrRoomNotFound).Once()
	rec = serve(router, http.MethodPost, "/rooms/missing/messages", `{"content":"hi"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkRead(t *testing.T) {
	handler, roomRepo, _, _ := newRoomFixture()
	router := setupRoomRouter(handler)

	roomRepo.On("MarkRead", mock.Anything, "r1", "alice", mock.AnythingOfType("time.Time")).Return(nil).Once()
	rec := serve(router, http.MethodPost, "/rooms/r1/read", "")
	require.Equal(t, http.StatusOK, rec.Code)

	roomRepo.On("MarkRead", mock.Anything, "r2", "alice", mock.AnythingOfType("time.Time")).Return(repositories.ErrNotParticipant).Once()
	rec = serve(router, http.MethodPost, "/rooms/r2/read", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	roomRepo.AssertExpectations(t)
}
