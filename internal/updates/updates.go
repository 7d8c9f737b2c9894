package updates

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	"github.com/sirupsen/logrus"

	"marketplace-service/internal/models"
	"marketplace-service/internal/observability"
)

const (
	KindRoomCreated    = "room_created"
	KindMessageSent    = "message_sent"
	KindContractSigned = "contract_signed"
)

// Meta describes who an update concerns.
type Meta struct {
	Timestamp int64    `json:"timestamp"`
	Audience  []string `json:"audience"`
}

// Update is the record written to the updates topic.
type Update struct {
	Meta Meta            `json:"meta"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// ContractSigned is the payload of a contract_signed update.
type ContractSigned struct {
	ContractID  string            `json:"contract_id"`
	Role        models.SignerRole `json:"role"`
	SignerID    string            `json:"signer_id"`
	Signatures  int               `json:"signatures"`
	FullySigned bool              `json:"fully_signed"`
}

// Publisher emits domain updates for downstream consumers.
type Publisher interface {
	RoomCreated(room models.Room) error
	MessageSent(msg models.Message, audience []string) error
	ContractSigned(contract models.Contract, sig models.Signature) error
	Close() error
}

type UpdatesStoreConfig struct {
	UpdatesTopic string
}

// UpdatesStorage writes updates to Kafka keyed by room or contract id, so
// updates of one conversation stay ordered within a partition.
type UpdatesStorage struct {
	cfg      *UpdatesStoreConfig
	producer sarama.SyncProducer
}

func NewUpdatesStore(p sarama.SyncProducer, cfg *UpdatesStoreConfig) *UpdatesStorage {
	return &UpdatesStorage{
		producer: p,
		cfg:      cfg,
	}
}

// NewProducer connects a sync producer to brokers.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Timeout = 10 * time.Second
	config.Producer.Return.Successes = true
	return sarama.NewSyncProducer(brokers, config)
}

// NewPublisher returns a Kafka-backed publisher, or a noop one when no brokers
// are configured or they are unreachable.
func NewPublisher(brokers []string, topic string, logger logrus.FieldLogger) Publisher {
	if len(brokers) == 0 {
		logger.Info("kafka updates disabled, using noop: no brokers")
		return noopPublisher{}
	}
	producer, err := NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("kafka updates disabled, using noop")
		return noopPublisher{}
	}
	logger.WithField("topic", topic).Info("kafka updates producer connected")
	return NewUpdatesStore(producer, &UpdatesStoreConfig{UpdatesTopic: topic})
}

func (s *UpdatesStorage) putUpdate(key, kind string, audience []string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Update{
		Meta: Meta{Timestamp: time.Now().UTC().Unix(), Audience: audience},
		Kind: kind,
		Data: raw,
	})
	if err != nil {
		return err
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.cfg.UpdatesTopic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		observability.IncKafkaPublishError()
	}
	return err
}

func (s *UpdatesStorage) RoomCreated(room models.Room) error {
	return s.putUpdate(room.ID, KindRoomCreated, room.Participants, room)
}

func (s *UpdatesStorage) MessageSent(msg models.Message, audience []string) error {
	return s.putUpdate(msg.RoomID, KindMessageSent, audience, msg)
}

func (s *UpdatesStorage) ContractSigned(contract models.Contract, sig models.Signature) error {
	return s.putUpdate(contract.ID, KindContractSigned, []string{contract.CompanyID, contract.FreelancerID}, ContractSigned{
		ContractID:  contract.ID,
		Role:        sig.Role,
		SignerID:    sig.SignerID,
		Signatures:  len(contract.Signatures),
		FullySigned: contract.FullySigned(),
	})
}

func (s *UpdatesStorage) Close() error {
	return s.producer.Close()
}

type noopPublisher struct{}

func (noopPublisher) RoomCreated(models.Room) error { return nil }
func (noopPublisher) MessageSent(models.Message, []string) error { return nil }
func (noopPublisher) ContractSigned(models.Contract, models.Signature) error { return nil }
func (noopPublisher) Close() error { return nil }
