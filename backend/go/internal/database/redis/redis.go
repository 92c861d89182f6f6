package redis

import (
	"context"
	"fmt"
	"time"

	"memory_orchestrator/backend/go/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewClient 根据配置创建 Redis 客户端并用 Ping 检查连通性。
// 客户端由调用方持有并负责关闭，不使用进程级单例。
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}
	return rdb, nil
}
