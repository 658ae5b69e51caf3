package signals

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"pharmasignals/database"
	"pharmasignals/metrics"
)

const historyFetchTimeout = 30 * time.Second

// HistoryCache 历史记录读缓存（按时间失效，不触发对账）
type HistoryCache struct {
	store   database.Database
	clock   Clock
	metrics *metrics.PrometheusMetrics
	ttl     atomic.Int64
	group   singleflight.Group

	mu         sync.Mutex
	records    []*database.HistoryRecord
	fetchedAt  time.Time
	valid      bool
	generation uint64
}

// NewHistoryCache 创建历史记录缓存
func NewHistoryCache(store database.Database, clock Clock, ttl time.Duration) *HistoryCache {
	if clock == nil {
		clock = SystemClock()
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	h := &HistoryCache{
		store:   store,
		clock:   clock,
		metrics: metrics.GetPrometheusMetrics(),
	}
	h.ttl.Store(int64(ttl))
	return h
}

// SetTTL 修改缓存时长
func (h *HistoryCache) SetTTL(d time.Duration) {
	if d > 0 {
		h.ttl.Store(int64(d))
	}
}

// Get 返回历史记录（按创建时间倒序），返回的切片为只读
func (h *HistoryCache) Get(ctx context.Context) ([]*database.HistoryRecord, error) {
	h.mu.Lock()
	if h.valid && h.clock.Now().Sub(h.fetchedAt) < time.Duration(h.ttl.Load()) {
		records := h.records
		h.mu.Unlock()
		h.metrics.RecordCacheRead("history", true)
		return records, nil
	}
	gen := h.generation
	h.mu.Unlock()
	h.metrics.RecordCacheRead("history", false)

	v, err, _ := h.group.Do("history", func() (interface{}, error) {
		// 多个读者共用这次读取，不随第一个调用方取消
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyFetchTimeout)
		defer cancel()
		records, err := h.store.ListHistory(fetchCtx, nil)
		if err != nil {
			return nil, persistenceError("list history", err)
		}

		h.mu.Lock()
		// 读取期间发生失效时不写入缓存
		if h.generation == gen {
			h.records = records
			h.fetchedAt = h.clock.Now()
			h.valid = true
		}
		h.mu.Unlock()
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*database.HistoryRecord), nil
}

// Invalidate 使缓存失效（历史记录被修改后调用）
func (h *HistoryCache) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.valid = false
	h.records = nil
	h.generation++
}
