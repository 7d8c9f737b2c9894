package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
)

// echoServer replies to every envelope with the same envelope.
func echoServer(t *testing.T, check func(r *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		check(r)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env models.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestDialSendsHandshake(t *testing.T) {
	url := echoServer(t, func(r *http.Request) {
		assert.False(t, r.URL.Query().Has("token"))
		assert.Equal(t, "u-1", r.URL.Query().Get("userId"))
		assert.Equal(t, "Ada", r.URL.Query().Get("userName"))
		assert.Equal(t, "professional", r.URL.Query().Get("userRole"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
	})

	ch, err := Dial(context.Background(), url, Handshake{Token: "tok", UserID: "u-1", UserName: "Ada", UserRole: "professional"})
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Emit(models.EventJoinRoom, models.RoomRef{RoomID: "room-1"}))
	select {
	case env := <-ch.Events():
		assert.Equal(t, models.EventJoinRoom, env.Event)
		assert.JSONEq(t, `{"room_id":"room-1"}`, string(env.Data))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestEmitAfterCloseFails(t *testing.T) {
	url := echoServer(t, func(*http.Request) {})
	ch, err := Dial(context.Background(), url, Handshake{Token: "tok"})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Emit(models.EventLeaveRoom, models.RoomRef{RoomID: "r"}), ErrChannelClosed)
	assert.NoError(t, ch.Close())
}

func TestDialFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), Handshake{Token: "bad"})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "connect", netErr.Op)
	assert.Equal(t, http.StatusUnauthorized, netErr.Status)
}
