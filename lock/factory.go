package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectTimeout 创建时检查 Redis 连通性的超时
const connectTimeout = 5 * time.Second

// Config 刷新锁配置
type Config struct {
	Enabled bool
	Type    string // 目前只支持 redis
	Prefix  string // 键前缀，同一 Redis 上部署多套服务时区分
	Redis   RedisConfig
}

// RedisConfig Redis 连接参数
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewDistributedLock 未启用时返回 NopLock；启用时连接 Redis，连不上直接返回错误，
// 由调用方决定是否退回单实例模式
func NewDistributedLock(config *Config) (DistributedLock, error) {
	if config == nil || !config.Enabled {
		return NewNopLock(), nil
	}

	switch config.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
			PoolSize: config.Redis.PoolSize,
		})
		l := NewRedisLock(client, config.Prefix)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := l.Ping(ctx); err != nil {
			l.Close()
			return nil, fmt.Errorf("connect redis %s: %w", config.Redis.Addr, err)
		}
		return l, nil

	default:
		return nil, fmt.Errorf("unsupported lock type: %s", config.Type)
	}
}
