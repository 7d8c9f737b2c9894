package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"marketplace-service/internal/models"
	"marketplace-service/internal/repositories"
	"marketplace-service/internal/updates"
	"marketplace-service/internal/webhook"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, creatorID string, name string, participantIDs []string) (models.Room, error) {
	args := m.Called(ctx, creatorID, name, participantIDs)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) IsParticipant(ctx context.Context, roomID string, userID string) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) RemoveParticipant(ctx context.Context, roomID string, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) MarkRead(ctx context.Context, roomID string, userID string, at time.Time) error {
	args := m.Called(ctx, roomID, userID, at)
	return args.Error(0)
}

func (m *RoomRepositoryMock) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	args := m.Called(ctx, roomID, at)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, roomID string, before *time.Time, limit uint64) ([]models.Message, error) {
	args := m.Called(ctx, roomID, before, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type ContractRepositoryMock struct {
	mock.Mock
}

func (m *ContractRepositoryMock) CreateContract(ctx context.Context, contract models.Contract) (models.Contract, error) {
	args := m.Called(ctx, contract)
	var stored models.Contract
	if val := args.Get(0); val != nil {
		stored = val.(models.Contract)
	}
	return stored, args.Error(1)
}

func (m *ContractRepositoryMock) GetContract(ctx context.Context, contractID string) (models.Contract, error) {
	args := m.Called(ctx, contractID)
	var contract models.Contract
	if val := args.Get(0); val != nil {
		contract = val.(models.Contract)
	}
	return contract, args.Error(1)
}

func (m *ContractRepositoryMock) AppendSignature(ctx context.Context, sig models.Signature) (models.Contract, error) {
	args := m.Called(ctx, sig)
	var contract models.Contract
	if val := args.Get(0); val != nil {
		contract = val.(models.Contract)
	}
	return contract, args.Error(1)
}

func (m *ContractRepositoryMock) SetAnchor(ctx context.Context, contractID string, hash string) error {
	args := m.Called(ctx, contractID, hash)
	return args.Error(0)
}

type UpdatesPublisherMock struct {
	mock.Mock
}

func (m *UpdatesPublisherMock) RoomCreated(room models.Room) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *UpdatesPublisherMock) MessageSent(msg models.Message, audience []string) error {
	args := m.Called(msg, audience)
	return args.Error(0)
}

func (m *UpdatesPublisherMock) ContractSigned(contract models.Contract, sig models.Signature) error {
	args := m.Called(contract, sig)
	return args.Error(0)
}

func (m *UpdatesPublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) JobMatch(req webhook.JobMatchRequest) {
	m.Called(req)
}

func (m *NotifierMock) ProfileCompleted(event webhook.ProfileCompleted) {
	m.Called(event)
}

var (
	_ repositories.RoomRepository     = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository  = (*MessageRepositoryMock)(nil)
	_ repositories.ContractRepository = (*ContractRepositoryMock)(nil)
	_ updates.Publisher               = (*UpdatesPublisherMock)(nil)
)
