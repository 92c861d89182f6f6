package episodic

import (
	"context"
	"fmt"
	"time"

	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/util"

	"github.com/go-redis/redis/v8"
)

// TurnCounter counts turns stored since the session's last summary.
type TurnCounter interface {
	Incr(ctx context.Context, sessionID string) (int64, error)
	Get(ctx context.Context, sessionID string) (int64, error)
	Reset(ctx context.Context, sessionID string) error
}

// RedisTurnCounter keeps counters under <prefix>:turns:<session>, sharing the
// working-memory TTL so idle sessions disappear together.
type RedisTurnCounter struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisTurnCounter creates a RedisTurnCounter.
func NewRedisTurnCounter(client redis.Cmdable, prefix string, ttl time.Duration) *RedisTurnCounter {
	if prefix == "" {
		prefix = "memory"
	}
	return &RedisTurnCounter{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisTurnCounter) key(sessionID string) string {
	return c.prefix + ":turns:" + sessionID
}

func (c *RedisTurnCounter) Incr(ctx context.Context, sessionID string) (int64, error) {
	key := c.key(sessionID)
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: incr turn counter: %v", models.ErrBackendUnavailable, err)
	}
	return incr.Val(), nil
}

func (c *RedisTurnCounter) Get(ctx context.Context, sessionID string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(sessionID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read turn counter: %v", models.ErrBackendUnavailable, err)
	}
	return n, nil
}

func (c *RedisTurnCounter) Reset(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: reset turn counter: %v", models.ErrBackendUnavailable, err)
	}
	return nil
}

// LocalTurnCounter is the in-process TurnCounter.
type LocalTurnCounter struct {
	cache *util.LRUCache[string, int64]
}

// NewLocalTurnCounter creates a LocalTurnCounter for up to maxSessions sessions.
func NewLocalTurnCounter(maxSessions int, ttl time.Duration) (*LocalTurnCounter, error) {
	cache, err := util.NewWithConfig[string, int64](util.CacheConfig{Capacity: maxSessions, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &LocalTurnCounter{cache: cache}, nil
}

func (c *LocalTurnCounter) Incr(_ context.Context, sessionID string) (int64, error) {
	return c.cache.Update(sessionID, func(cur int64, _ bool) (int64, bool) {
		return cur + 1, true
	}), nil
}

func (c *LocalTurnCounter) Get(_ context.Context, sessionID string) (int64, error) {
	n, _ := c.cache.Get(sessionID)
	return n, nil
}

func (c *LocalTurnCounter) Reset(_ context.Context, sessionID string) error {
	c.cache.Delete(sessionID)
	return nil
}
