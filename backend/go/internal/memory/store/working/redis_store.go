package working

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"memory_orchestrator/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each session's window in a Redis list under <prefix>:wm:<session>.
type RedisStore struct {
	client      redis.Cmdable
	prefix      string
	maxMessages int
	ttl         time.Duration
}

// NewRedisStore creates a RedisStore bounded to maxMessages entries per session.
func NewRedisStore(client redis.Cmdable, prefix string, maxMessages int, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "memory"
	}
	return &RedisStore{client: client, prefix: prefix, maxMessages: maxMessages, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":wm:" + sessionID
}

// Append pushes, trims and refreshes the TTL in one MULTI/EXEC.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append working memory: %v", models.ErrBackendUnavailable, err)
	}
	return nil
}

// Read returns the stored window. Entries that fail to decode are skipped.
func (s *RedisStore) Read(ctx context.Context, sessionID string) ([]models.Message, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return []models.Message{}, fmt.Errorf("%w: read working memory: %v", models.ErrBackendUnavailable, err)
	}
	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if len(msgs) > s.maxMessages {
		msgs = msgs[len(msgs)-s.maxMessages:]
	}
	return msgs, nil
}

// Clear deletes the session's list.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: clear working memory: %v", models.ErrBackendUnavailable, err)
	}
	return nil
}
