// Package sink delivers batches of feed events to an external destination.
package sink

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/logger"
)

const (
	headerEventType = "event_type"
	headerSignature = "signature"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each event as one message keyed by event id.
// KafkaSink 将每个事件作为一条以事件 ID 为键的消息发布。
type KafkaSink struct {
	writer     messageWriter
	signingKey []byte
	logger     logger.Logger
}

var _ domainService.EventSink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg config.KafkaConfig, log logger.Logger) *KafkaSink {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaSink(writer, cfg.SigningKey, log)
}

func newKafkaSink(writer messageWriter, signingKey string, log logger.Logger) *KafkaSink {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	s := &KafkaSink{writer: writer, logger: log.WithComponent("KafkaSink")}
	if signingKey != "" {
		s.signingKey = []byte(signingKey)
	}
	return s
}

// Publish writes events in order. Either the whole batch is accepted or an error is returned.
func (s *KafkaSink) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error(ctx, "failed to marshal event", err, logger.String("event_id", ev.EventID))
			return err
		}
		msg := kafka.Message{
			Key:     []byte(ev.EventID),
			Value:   value,
			Headers: []kafka.Header{{Key: headerEventType, Value: []byte(ev.EventType)}},
		}
		if s.signingKey != nil {
			msg.Headers = append(msg.Headers, kafka.Header{Key: headerSignature, Value: []byte(sign(value, s.signingKey))})
		}
		msgs = append(msgs, msg)
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		s.logger.Error(ctx, "failed to write events to Kafka", err, logger.Int("count", len(msgs)))
		return err
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// sign returns the base64 HMAC-SHA256 of payload.
func sign(payload, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(payload)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
