package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
)

func TestSendMessagePostsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms/room-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body postMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Content)
		assert.Equal(t, models.MessageText, body.Type)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Message{ID: "m-1", RoomID: "room-1", Content: "hello", Type: models.MessageText, CreatedAt: time.Now()})
	}))
	defer server.Close()

	msg, err := NewREST(server.URL+"/", "tok").SendMessage(context.Background(), "room-1", "hello", models.MessageText)
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.ID)
}

func TestListRoomsUnwrapsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"rooms": []models.Room{{ID: "a"}, {ID: "b"}}})
	}))
	defer server.Close()

	rooms, err := NewREST(server.URL, "tok").ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "b", rooms[1].ID)
}

func TestErrorsAreNetworkErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rooms/x/read" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not a room participant"})
	}))
	defer server.Close()
	api := NewREST(server.URL, "tok")

	_, err := api.CreateRoom(context.Background(), []string{"bob"}, "")
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "create room", netErr.Op)
	assert.Equal(t, http.StatusForbidden, netErr.Status)
	assert.Contains(t, err.Error(), "not a room participant")

	err = api.MarkRead(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransportFailureHasNoStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewREST(url, "").LeaveRoom(context.Background(), "room-1")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Zero(t, netErr.Status)
}

func TestSubmitSignatureReturnsContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contracts/c-1/signatures", r.URL.Path)
		var sub models.SignatureSubmission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		assert.Equal(t, "0xhash", sub.Hash)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ContractView{
			Contract:       models.Contract{ID: "c-1", Signatures: []models.Signature{sub.ToSignature()}},
			SignatureRatio: 0.5,
		})
	}))
	defer server.Close()

	contract, err := NewREST(server.URL, "tok").SubmitSignature(context.Background(), models.SignatureSubmission{
		ContractID: "c-1", SignerID: "acme", Role: models.SignerClient, WalletAddress: "0xabc", Signature: "0xsig", Hash: "0xhash",
	})
	require.NoError(t, err)
	require.Len(t, contract.Signatures, 1)
	assert.Equal(t, "0xhash", contract.Signatures[0].ContentHash)
}
