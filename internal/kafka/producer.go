package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"payment-simulator/internal/logger"
	"payment-simulator/internal/models"
)

type Topics struct {
	Audit  string
	Events string
}

// Producer forwards redacted audit records and payment events. In mock mode
// messages are only logged.
type Producer struct {
	producer sarama.SyncProducer
	mockMode bool
	topics   Topics
	log      *logger.Logger
}

func NewProducer(brokers []string, topics Topics, mockMode bool, log *logger.Logger) (*Producer, error) {
	if mockMode {
		log.LogKafka("MOCK_MODE", "producer", "Running in mock mode - no actual Kafka connection")
		return &Producer{mockMode: true, topics: topics, log: log}, nil
	}

	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", "producer", fmt.Sprintf("Connected to Kafka brokers: %v", brokers))
	return NewWithSyncProducer(producer, topics, log), nil
}

// NewWithSyncProducer wraps an existing producer, e.g. sarama/mocks in tests.
func NewWithSyncProducer(producer sarama.SyncProducer, topics Topics, log *logger.Logger) *Producer {
	return &Producer{producer: producer, topics: topics, log: log}
}

func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	return config
}

// PublishAudit implements logger.AuditSink. It must not log through the
// audit categories or it would recurse.
func (p *Producer) PublishAudit(entry *logger.AuditEntry) error {
	key := ""
	if id, ok := entry.Request["requestId"].(string); ok {
		key = id
	}
	return p.send(p.topics.Audit, key, entry)
}

func (p *Producer) PublishPaymentEvent(event *models.PaymentEvent) error {
	return p.send(p.topics.Events, event.RequestID, event)
}

func (p *Producer) send(topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, fmt.Sprintf("Mock publishing %d bytes for request %s", len(data), key))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", topic, err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", topic, fmt.Sprintf("Message sent to partition %d at offset %d", partition, offset))
	return nil
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", "producer", "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", "producer", "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}
