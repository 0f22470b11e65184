package repository

import (
	"context"
	"fmt"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	pkgkafka "BinPull/pkg/kafka"
)

// TopicPublisher is the producer surface used by the sink.
type TopicPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

var _ TopicPublisher = (*pkgkafka.Producer)(nil)

// KafkaEventSink forwards bus events to a topic keyed by session id, so one
// session's events stay ordered within a partition.
type KafkaEventSink struct {
	p     TopicPublisher
	topic string
}

var _ domrepo.EventSink = (*KafkaEventSink)(nil)

func NewKafkaEventSink(p TopicPublisher, topic string) *KafkaEventSink {
	return &KafkaEventSink{p: p, topic: topic}
}

func (s *KafkaEventSink) Publish(ctx context.Context, e models.Event) error {
	if err := s.p.Publish(ctx, s.topic, []byte(e.SessionID), e); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Kind, err)
	}
	return nil
}

func (s *KafkaEventSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}
