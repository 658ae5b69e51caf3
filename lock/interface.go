package lock

import (
	"context"
	"time"
)

// DistributedLock 跨实例互斥，用于保证同一刷新窗口只有一个实例查询价格。
// 锁带过期时间，持有者崩溃后由过期释放。
type DistributedLock interface {
	// TryLock 不等待；false 表示其他实例正在刷新
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock 只释放本实例持有的锁
	Unlock(ctx context.Context, key string) error
	Close() error
}

// NopLock 单实例部署使用，总能获得锁，进程内的互斥由 singleflight 负责
type NopLock struct{}

func NewNopLock() *NopLock { return &NopLock{} }

func (NopLock) TryLock(context.Context, string, time.Duration) (bool, error) { return true, nil }

func (NopLock) Unlock(context.Context, string) error { return nil }

func (NopLock) Close() error { return nil }
