package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageWriter 是 EventPublisher 依赖的最小写入接口，*kafka.Writer 满足它。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher 把记忆事件序列化为 JSON 发送到 Kafka。
type EventPublisher struct {
	writer MessageWriter
	failed atomic.Int64
}

// NewEventPublisher 为记忆事件主题创建异步 writer。
// Publish 不等待 broker 确认，投递失败由 Completion 回调记录日志并计数。
func NewEventPublisher(brokers []string, topic string, log *logger.Logger) *EventPublisher {
	p := &EventPublisher{}
	p.writer = newAsyncWriter(brokers, topic, log, &p.failed)
	return p
}

func newAsyncWriter(brokers []string, topic string, log *logger.Logger, failed *atomic.Int64) *kafka.Writer {
	if log == nil {
		log = logger.Discard()
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			failed.Add(int64(len(messages)))
			log.WithError(models.NewErrorInfo(err)).
				WithPayload(map[string]interface{}{"topic": topic, "messages": len(messages)}).
				Warn("failed to deliver memory events")
		},
	}
}

// NewEventPublisherWithWriter 使用给定的 writer，便于测试。
func NewEventPublisherWithWriter(w MessageWriter) *EventPublisher {
	return &EventPublisher{writer: w}
}

// Publish 以会话 ID（没有时用用户 ID）作为分区键发送事件，保证同一会话的事件有序。
func (p *EventPublisher) Publish(ctx context.Context, event models.MemoryEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal memory event: %w", err)
	}

	key := event.SessionID
	if key == "" {
		key = event.UserID
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: jsonData,
	}); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Failed 返回异步投递失败的消息数。
func (p *EventPublisher) Failed() int64 {
	return p.failed.Load()
}

// Close 刷新未发送的消息并关闭底层的 writer 连接。
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
