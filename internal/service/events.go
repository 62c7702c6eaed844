package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"user-service/internal/entity"
)

// EventPublisher announces user lifecycle changes to other services.
type EventPublisher interface {
	PublishUserEvent(ctx context.Context, user *entity.User, key string) error
}

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishUserEvent writes the user as JSON keyed "user-<key>-<id>", e.g. user-created-1.
func (p *KafkaPublisher) PublishUserEvent(ctx context.Context, user *entity.User, key string) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("user-%s-%d", key, user.ID)),
		Value: userJSON,
	}

	return p.writer.WriteMessages(ctx, msg)
}
