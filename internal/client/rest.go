package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketplace-service/internal/models"
)

const httpTimeout = 10 * time.Second

// REST is a client for the marketplace REST API.
type REST struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewREST constructs a client for baseURL authenticating with token.
func NewREST(baseURL, token string) *REST {
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: httpTimeout},
	}
}

// ContractView is a contract with its signing progress.
type ContractView struct {
	Contract          models.Contract `json:"contract"`
	SignatureRatio    float64         `json:"signature_ratio"`
	SignatureProgress string          `json:"signature_progress"`
	FullySigned       bool            `json:"fully_signed"`
}

// PayloadView is the canonical payload of a contract and its hash.
type PayloadView struct {
	Payload json.RawMessage `json:"payload"`
	Hash    string          `json:"hash"`
}

type createRoomRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	Name           string   `json:"name,omitempty"`
}

type postMessageRequest struct {
	Content string             `json:"content"`
	Type    models.MessageType `json:"type"`
}

func (c *REST) ListRooms(ctx context.Context) ([]models.Room, error) {
	var resp struct {
		Rooms []models.Room `json:"rooms"`
	}
	err := c.doJSONRequest(ctx, "list rooms", http.MethodGet, "/rooms", nil, &resp)
	return resp.Rooms, err
}

func (c *REST) CreateRoom(ctx context.Context, participantIDs []string, name string) (models.Room, error) {
	var room models.Room
	err := c.doJSONRequest(ctx, "create room", http.MethodPost, "/rooms", createRoomRequest{ParticipantIDs: participantIDs, Name: name}, &room)
	return room, err
}

func (c *REST) LeaveRoom(ctx context.Context, roomID string) error {
	return c.doJSONRequest(ctx, "leave room", http.MethodDelete, "/rooms/"+url.PathEscape(roomID)+"/me", nil, nil)
}

func (c *REST) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.doJSONRequest(ctx, "list messages", http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &resp)
	return resp.Messages, err
}

func (c *REST) SendMessage(ctx context.Context, roomID, content string, msgType models.MessageType) (models.Message, error) {
	var msg models.Message
	err := c.doJSONRequest(ctx, "send message", http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", postMessageRequest{Content: content, Type: msgType}, &msg)
	return msg, err
}

func (c *REST) MarkRead(ctx context.Context, roomID string) error {
	return c.doJSONRequest(ctx, "mark read", http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/read", nil, nil)
}

func (c *REST) GetContract(ctx context.Context, contractID string) (ContractView, error) {
	var view ContractView
	err := c.doJSONRequest(ctx, "get contract", http.MethodGet, "/contracts/"+url.PathEscape(contractID), nil, &view)
	return view, err
}

func (c *REST) GetPayload(ctx context.Context, contractID string) (PayloadView, error) {
	var view PayloadView
	err := c.doJSONRequest(ctx, "get contract payload", http.MethodGet, "/contracts/"+url.PathEscape(contractID)+"/payload", nil, &view)
	return view, err
}

// SubmitSignature posts a wallet signature and returns the updated contract.
func (c *REST) SubmitSignature(ctx context.Context, sub models.SignatureSubmission) (models.Contract, error) {
	var view ContractView
	err := c.doJSONRequest(ctx, "submit signature", http.MethodPost, "/contracts/"+url.PathEscape(sub.ContractID)+"/signatures", sub, &view)
	return view.Contract, err
}

func (c *REST) doJSONRequest(ctx context.Context, op, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return &NetworkError{Op: op, Err: err}
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: ErrUnauthorized}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(readResponseError(resp.Body))}
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}
