package signals

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pharmasignals/database"
	"pharmasignals/event"
	"pharmasignals/logger"
	"pharmasignals/metrics"
	"pharmasignals/oracle"
	"pharmasignals/utils"
)

// lookupPolicy 价格查询失败时的处理方式
type lookupPolicy int

const (
	// keepStale 保留上次价格并继续（读取路径）
	keepStale lookupPolicy = iota
	// failFast 直接返回查询错误（管理员单个刷新）
	failFast
)

// ReconcilerConfig 对账配置
type ReconcilerConfig struct {
	LookupTimeout  time.Duration // 单次价格查询超时
	MaxConcurrency int           // 并发查询数
}

// Reconciler 对开放信号执行价格更新、目标检测和归档
type Reconciler struct {
	store          database.Database
	oracle         oracle.PriceOracle
	clock          Clock
	events         *event.EventBus
	metrics        *metrics.PrometheusMetrics
	lookupTimeout  time.Duration
	maxConcurrency int

	hookMu       sync.RWMutex
	archiveHooks []func(*database.HistoryRecord)
}

// NewReconciler 创建对账器
func NewReconciler(store database.Database, priceOracle oracle.PriceOracle, clock Clock, events *event.EventBus, cfg ReconcilerConfig) *Reconciler {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Reconciler{
		store:          store,
		oracle:         priceOracle,
		clock:          clock,
		events:         events,
		metrics:        metrics.GetPrometheusMetrics(),
		lookupTimeout:  cfg.LookupTimeout,
		maxConcurrency: cfg.MaxConcurrency,
	}
}

// OnArchive 注册归档成功后的回调
func (r *Reconciler) OnArchive(fn func(*database.HistoryRecord)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.archiveHooks = append(r.archiveHooks, fn)
}

// ShouldClose 价格达到第一目标（含相等）即平仓
func ShouldClose(signal *database.Signal, price float64) bool {
	return price >= signal.FirstTarget
}

// IsSuccess 出场价高于入场价即视为成功。
// 不区分 Buy/Sell：做空信号的成功判定因此是反的，保留现有行为。
func IsSuccess(enterPrice, outPrice float64) bool {
	return enterPrice < outPrice
}

// Reconcile 对一批开放信号执行价格对账，返回仍然开放的信号（保持输入顺序）。
// 单个信号查询价格失败时保留旧价格继续；存储失败中止整个流程。
func (r *Reconciler) Reconcile(ctx context.Context, signals []*database.Signal) ([]*database.Signal, error) {
	start := time.Now()
	kept := make([]*database.Signal, len(signals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, sig := range signals {
		i, sig := i, sig
		g.Go(func() error {
			open, err := r.reconcileOne(gctx, sig, keepStale)
			if err != nil {
				return err
			}
			if open {
				kept[i] = sig
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.metrics.RecordReconciliation("error", time.Since(start))
		return nil, err
	}
	r.metrics.RecordReconciliation("success", time.Since(start))

	open := make([]*database.Signal, 0, len(signals))
	for _, sig := range kept {
		if sig != nil {
			open = append(open, sig)
		}
	}
	return open, nil
}

// RefreshOne 管理员单个刷新：查询失败时返回 *oracle.PriceLookupError。
// 返回刷新后的信号以及是否仍然开放。
func (r *Reconciler) RefreshOne(ctx context.Context, id int64) (*database.Signal, bool, error) {
	sig, err := r.store.GetSignal(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, false, err
		}
		return nil, false, persistenceError("load signal", err)
	}
	open, err := r.reconcileOne(ctx, sig, failFast)
	if err != nil {
		return nil, false, err
	}
	return sig, open, nil
}

// CloseManually 管理员手动平仓：以当前记录的价格归档，不查询价格源
func (r *Reconciler) CloseManually(ctx context.Context, id int64) (*database.HistoryRecord, error) {
	sig, err := r.store.GetSignal(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		return nil, persistenceError("load signal", err)
	}

	record, err := r.archive(ctx, sig, sig.PriceNow, database.CloseReasonManual)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		return nil, persistenceError("archive", err)
	}
	return record, nil
}

// reconcileOne 处理单个信号，返回信号是否仍然开放
func (r *Reconciler) reconcileOne(ctx context.Context, sig *database.Signal, policy lookupPolicy) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	price, err := r.oracle.FetchCurrentPrice(lookupCtx, sig.Symbol)
	cancel()

	if err != nil {
		// 整个流程已被取消（其他信号存储失败或调用方放弃）
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		if !oracle.IsPriceLookupError(err) {
			err = &oracle.PriceLookupError{Provider: r.oracle.Name(), Symbol: sig.Symbol, Err: err}
		}
		if policy == failFast {
			return true, err
		}

		logger.Warn("⚠️ 查询 %s(#%d) 价格失败，保留上次价格 %.4f: %v", sig.Symbol, sig.ID, sig.PriceNow, err)
		r.metrics.RecordPriceLookupFailure(sig.Symbol)
		r.events.Publish(&event.Event{
			Type: event.EventTypePriceLookupFailed,
			Data: map[string]interface{}{"id": sig.ID, "symbol": sig.Symbol},
		})
		return true, nil
	}

	sig.PriceNow = price
	r.metrics.SetSignalPrice(sig.Symbol, price)

	if ShouldClose(sig, price) {
		// 归档删除信号，覆盖价格更新
		_, err := r.archive(ctx, sig, price, database.CloseReasonTarget)
		if errors.Is(err, database.ErrNotFound) {
			logger.Info("信号 %s(#%d) 已被其他流程归档，跳过", sig.Symbol, sig.ID)
			return false, nil
		}
		if err != nil {
			return false, persistenceError("archive", err)
		}
		return false, nil
	}

	if err := r.store.UpdateSignalPrice(ctx, sig.ID, price); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// 对账期间被归档或删除
			return false, nil
		}
		return true, persistenceError("update price", err)
	}
	return true, nil
}

// archive 将信号移入历史记录（自动平仓和手动平仓共用）。
// 历史说明不从信号复制，由管理员另行填写。
func (r *Reconciler) archive(ctx context.Context, sig *database.Signal, outPrice float64, reason string) (*database.HistoryRecord, error) {
	record := &database.HistoryRecord{
		SignalID:     sig.ID,
		Symbol:       sig.Symbol,
		EntranceDate: sig.DateOpened,
		ClosingDate:  utils.DateOf(r.clock.Now()),
		InPrice:      sig.EnterPrice,
		OutPrice:     outPrice,
		Success:      IsSuccess(sig.EnterPrice, outPrice),
		CloseReason:  reason,
	}
	if err := r.store.ArchiveSignal(ctx, record); err != nil {
		return nil, err
	}

	logger.Info("✅ 信号 %s(#%d) 已归档 [%s]: 入场 %.4f 出场 %.4f 成功=%v",
		sig.Symbol, sig.ID, reason, record.InPrice, record.OutPrice, record.Success)
	r.metrics.RecordSignalClosed(reason, record.Success)
	r.events.Publish(&event.Event{
		Type: event.EventTypeSignalClosed,
		Data: map[string]interface{}{
			"id":       sig.ID,
			"symbol":   sig.Symbol,
			"outPrice": outPrice,
			"success":  record.Success,
			"reason":   reason,
		},
	})

	r.hookMu.RLock()
	hooks := r.archiveHooks
	r.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(record)
	}
	return record, nil
}
