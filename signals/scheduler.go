package signals

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"pharmasignals/database"
	"pharmasignals/event"
	"pharmasignals/lock"
	"pharmasignals/logger"
	"pharmasignals/metrics"
)

const (
	// LastPriceUpdateKey 最近一次价格刷新时间（RFC3339Nano）
	LastPriceUpdateKey = "last_price_update"

	refreshLockKey    = "refresh:open_signals"
	openSignalsFlight = "open_signals"
)

// SchedulerConfig 刷新调度配置
type SchedulerConfig struct {
	Interval    time.Duration // 刷新间隔，默认 120s
	PassTimeout time.Duration // 单次对账最长时间
	LockTTL     time.Duration // 分布式锁过期时间
}

// Scheduler 按时间窗口控制开放信号的价格刷新。
// 进程内由 singleflight 合并并发请求，多实例部署时由分布式锁协调。
type Scheduler struct {
	store       database.Database
	reconciler  *Reconciler
	clock       Clock
	lock        lock.DistributedLock
	events      *event.EventBus
	metrics     *metrics.PrometheusMetrics
	interval    atomic.Int64
	passTimeout time.Duration
	lockTTL     time.Duration
	group       singleflight.Group
}

// NewScheduler 创建刷新调度器
func NewScheduler(store database.Database, reconciler *Reconciler, clock Clock, distLock lock.DistributedLock, events *event.EventBus, cfg SchedulerConfig) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if distLock == nil {
		distLock = lock.NewNopLock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 120 * time.Second
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 2 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.PassTimeout
	}

	s := &Scheduler{
		store:       store,
		reconciler:  reconciler,
		clock:       clock,
		lock:        distLock,
		events:      events,
		metrics:     metrics.GetPrometheusMetrics(),
		passTimeout: cfg.PassTimeout,
		lockTTL:     cfg.LockTTL,
	}
	s.interval.Store(int64(cfg.Interval))
	return s
}

// SetInterval 修改刷新间隔（配置热更新）
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval.Store(int64(d))
	}
}

// Interval 当前刷新间隔
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// OpenSignals 返回开放信号；距上次刷新超过间隔时先执行一次对账。
// 对账在与请求分离的 context 中执行，调用方放弃等待不会中断正在进行的对账。
func (s *Scheduler) OpenSignals(ctx context.Context) ([]*database.Signal, error) {
	ch := s.group.DoChan(openSignalsFlight, func() (interface{}, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.passTimeout)
		defer cancel()
		return s.load(passCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*database.Signal), nil
	}
}

// LastRefresh 最近一次刷新时间，从未刷新时返回零值
func (s *Scheduler) LastRefresh(ctx context.Context) (time.Time, error) {
	raw, err := s.store.GetSetting(ctx, LastPriceUpdateKey)
	if errors.Is(err, database.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, persistenceError("read refresh state", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		logger.Warn("⚠️ 无法解析 %s=%q，视为从未刷新: %v", LastPriceUpdateKey, raw, err)
		return time.Time{}, nil
	}
	return t, nil
}

// isStale 距上次刷新是否已超过间隔。
// 未记录时视为最旧；记录时间在未来（实例间时钟偏差）同样视为过期。
func (s *Scheduler) isStale(ctx context.Context) (bool, error) {
	last, err := s.LastRefresh(ctx)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	elapsed := s.clock.Now().Sub(last)
	return elapsed >= s.Interval() || elapsed < 0, nil
}

func (s *Scheduler) listOpen(ctx context.Context) ([]*database.Signal, error) {
	signals, err := s.store.ListOpenSignals(ctx)
	if err != nil {
		return nil, persistenceError("list open signals", err)
	}
	return signals, nil
}

func (s *Scheduler) load(ctx context.Context) ([]*database.Signal, error) {
	stale, err := s.isStale(ctx)
	if err != nil {
		return nil, err
	}
	if !stale {
		s.metrics.RecordCacheRead("open_signals", true)
		return s.listOpen(ctx)
	}
	s.metrics.RecordCacheRead("open_signals", false)

	acquired, err := s.lock.TryLock(ctx, refreshLockKey, s.lockTTL)
	switch {
	case err != nil:
		// 锁服务不可用时降级为本实例刷新
		logger.Warn("⚠️ 获取刷新锁失败，降级为本实例刷新: %v", err)
		s.metrics.RecordLockAcquire(refreshLockKey, "error")
	case !acquired:
		// 其他实例正在刷新，返回当前数据
		logger.Debug("其他实例正在刷新价格，返回当前数据")
		s.metrics.RecordLockAcquire(refreshLockKey, "conflict")
		return s.listOpen(ctx)
	default:
		s.metrics.RecordLockAcquire(refreshLockKey, "acquired")
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx), refreshLockKey); err != nil {
				logger.Warn("⚠️ 释放刷新锁失败: %v", err)
			}
		}()
		// 加锁期间其他实例可能刚完成刷新
		if stale, err = s.isStale(ctx); err != nil {
			return nil, err
		} else if !stale {
			return s.listOpen(ctx)
		}
	}

	signals, err := s.listOpen(ctx)
	if err != nil {
		return nil, err
	}

	open, err := s.reconciler.Reconcile(ctx, signals)
	if err != nil {
		logger.Error("❌ 价格对账失败: %v", err)
		return nil, err
	}

	now := s.clock.Now()
	if err := s.store.SetSetting(ctx, LastPriceUpdateKey, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, persistenceError("write refresh state", err)
	}

	closed := len(signals) - len(open)
	logger.Info("价格刷新完成: %d 个信号，%d 个已归档", len(signals), closed)
	s.metrics.SetLastRefresh(now)
	s.metrics.SetOpenSignals(len(open))
	s.events.Publish(&event.Event{
		Type: event.EventTypeSignalsRefreshed,
		Data: map[string]interface{}{"open": len(open), "closed": closed},
	})
	return open, nil
}
