// Package audit delivers structured rotation events to monitoring systems.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/pkg/logger"
)

// KafkaProducer is a Kafka-backed implementation of the AuditService.
type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

// NewKafkaProducer creates a producer for the rotation event topic.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) (service.AuditService, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.RotationTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	return &KafkaProducer{
		writer: writer,
		logger: log.WithComponent("audit_producer"),
	}, nil
}

// LogRotation sends a rotation event to the Kafka topic. The event id keys
// the message so replays are deduplicatable downstream.
func (p *KafkaProducer) LogRotation(ctx context.Context, event models.RotationEvent) error {
	bytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal rotation event", err)
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EventID),
		Value: bytes,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to write rotation event to kafka", err,
			logger.String("event_type", string(event.EventType)))
	}
	return err
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

var _ service.AuditService = (*KafkaProducer)(nil)
