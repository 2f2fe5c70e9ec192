package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"ncmfm/config"
	"ncmfm/logger"
)

// RedisClient 是全局Redis客户端，未配置时为 nil
var RedisClient *redis.Client

// NewRedisClient 按配置创建客户端，不建立连接
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	client := NewRedisClient(cfg)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	logger.Info("[Redis] 连接成功", logger.String("addr", client.Options().Addr))
	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}
