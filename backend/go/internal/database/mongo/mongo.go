package mongo

import (
	"context"
	"fmt"
	"time"

	"memory_orchestrator/backend/go/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NewClient 根据配置连接 MongoDB 并 Ping 检查。客户端由调用方持有并负责断开。
func NewClient(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(cfg.Address)
	if cfg.Username != "" && cfg.Password != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("无法连接到 MongoDB: %w", err)
	}
	if err = c.Ping(connectCtx, nil); err != nil {
		_ = c.Disconnect(ctx)
		return nil, fmt.Errorf("无法 Ping MongoDB: %w", err)
	}
	return c, nil
}

// Collection 返回情景摘要所用的集合。
func Collection(client *mongo.Client, cfg *config.MongoConfig) *mongo.Collection {
	return client.Database(cfg.Database).Collection(cfg.Collection)
}
