package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
)

type KafkaConfig struct {
	Brokers  string
	Topic    string
	ClientID string
}

// KafkaPublisher produces status-change events keyed by ticket id so one
// ticket's events stay ordered within a partition.
type KafkaPublisher struct {
	producer   *kafka.Producer
	topic      string
	deliveries chan kafka.Event
	logger     zerolog.Logger

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	wg sync.WaitGroup
}

func NewKafkaPublisher(cfg KafkaConfig, logger zerolog.Logger) (*KafkaPublisher, error) {
	if cfg.Brokers == "" || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "pothole-backend"
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   cfg.Brokers,
		"client.id":           clientID,
		"acks":                "all",
		"enable.idempotence":  true,
		"linger.ms":           5,
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kp := &KafkaPublisher{
		producer:   p,
		topic:      cfg.Topic,
		deliveries: make(chan kafka.Event, 1000),
		logger:     logger,
	}
	kp.startDeliveries()
	return kp, nil
}

func (k *KafkaPublisher) startDeliveries() {
	k.wg.Add(1)
	go k.handleDeliveries()
}

// handleDeliveries counts delivery reports until the channel is closed, so
// reports still buffered at shutdown are counted too.
func (k *KafkaPublisher) handleDeliveries() {
	defer k.wg.Done()
	for e := range k.deliveries {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			k.failed.Add(1)
			k.logger.Warn().Err(m.TopicPartition.Error).Str("key", string(m.Key)).Msg("event delivery failed")
			continue
		}
		k.acked.Add(1)
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e StatusChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := e.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.TicketID),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
		Timestamp: e.OccurredAt,
	}
	if err := k.producer.Produce(msg, k.deliveries); err != nil {
		k.failed.Add(1)
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	k.sent.Add(1)
	return nil
}

func (k *KafkaPublisher) Stats() map[string]int64 {
	return map[string]int64{
		"sent":   k.sent.Load(),
		"acked":  k.acked.Load(),
		"failed": k.failed.Load(),
	}
}

// Close flushes queued events for up to timeout and releases the producer.
// The delivery channel is closed only after the producer, which stops
// writing reports to it on Close.
func (k *KafkaPublisher) Close(timeout time.Duration) {
	remaining := k.producer.Flush(int(timeout.Milliseconds()))
	k.producer.Close()
	k.stopDeliveries()
	k.logger.Info().
		Int("unflushed", remaining).
		Int64("sent", k.sent.Load()).
		Int64("acked", k.acked.Load()).
		Int64("failed", k.failed.Load()).
		Msg("kafka publisher closed")
}

func (k *KafkaPublisher) stopDeliveries() {
	close(k.deliveries)
	k.wg.Wait()
}
