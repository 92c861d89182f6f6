// Package consumer feeds chat turns from Kafka into the memory service.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MemoryService is what the consumer drives.
type MemoryService interface {
	StoreMessage(ctx context.Context, sessionID, userID string, msg models.Message)
	EndSession(ctx context.Context, sessionID, userID, content string) int
}

// KafkaConsumer consumes chat turns from a Kafka topic and processes them with the MemoryService.
type KafkaConsumer struct {
	reader        MessageReader
	memoryService MemoryService
	logger        *logger.Logger
	backoff       time.Duration
}

// NewKafkaConsumer creates a new KafkaConsumer.
func NewKafkaConsumer(reader MessageReader, memoryService MemoryService, logger *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:        reader,
		memoryService: memoryService,
		logger:        logger,
		backoff:       time.Second,
	}
}

// Run consumes until ctx is cancelled. Messages that cannot be decoded are
// committed and skipped so one bad record cannot stall the partition.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.WithError(models.NewErrorInfo(err)).Error("failed to fetch message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.Handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(models.NewErrorInfo(err)).Error("failed to commit message")
		}
	}
}

// Handle processes one record.
func (c *KafkaConsumer) Handle(ctx context.Context, msg kafka.Message) {
	var turn models.TurnEvent
	if err := json.Unmarshal(msg.Value, &turn); err != nil {
		c.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "decode"}).
			WithPayload(map[string]interface{}{"partition": msg.Partition, "offset": msg.Offset}).
			Error("failed to unmarshal message")
		return
	}
	log := c.logger.WithSession(turn.SessionID, turn.UserID)
	if turn.SessionID == "" || turn.UserID == "" {
		log.Warn("dropping turn without session or user")
		return
	}

	if turn.EndSession {
		n := c.memoryService.EndSession(ctx, turn.SessionID, turn.UserID, turn.Content)
		log.WithField("facts_written", n).Info("session ended")
		return
	}
	c.memoryService.StoreMessage(ctx, turn.SessionID, turn.UserID, turn.Message())
}
