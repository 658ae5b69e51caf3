package signals

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"pharmasignals/database"
	"pharmasignals/event"
	"pharmasignals/lock"
	"pharmasignals/logger"
	"pharmasignals/oracle"
	"pharmasignals/utils"
)

// Options 服务配置
type Options struct {
	Clock           Clock
	Lock            lock.DistributedLock
	Events          *event.EventBus
	SignalsInterval time.Duration // 开放信号刷新间隔
	HistoryTTL      time.Duration // 历史记录缓存时长
	LookupTimeout   time.Duration // 单次价格查询超时
	PassTimeout     time.Duration // 单次对账最长时间
	LockTTL         time.Duration // 刷新锁过期时间
	MaxConcurrency  int           // 对账并发查询数
}

// Service 信号读写入口（供 Web 层调用）
type Service struct {
	store      database.Database
	clock      Clock
	events     *event.EventBus
	reconciler *Reconciler
	scheduler  *Scheduler
	history    *HistoryCache
}

// NewService 创建信号服务
func NewService(store database.Database, priceOracle oracle.PriceOracle, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}

	reconciler := NewReconciler(store, priceOracle, opts.Clock, opts.Events, ReconcilerConfig{
		LookupTimeout:  opts.LookupTimeout,
		MaxConcurrency: opts.MaxConcurrency,
	})
	scheduler := NewScheduler(store, reconciler, opts.Clock, opts.Lock, opts.Events, SchedulerConfig{
		Interval:    opts.SignalsInterval,
		PassTimeout: opts.PassTimeout,
		LockTTL:     opts.LockTTL,
	})
	history := NewHistoryCache(store, opts.Clock, opts.HistoryTTL)

	// 新归档的记录立即出现在历史中
	reconciler.OnArchive(func(*database.HistoryRecord) { history.Invalidate() })

	return &Service{
		store:      store,
		clock:      opts.Clock,
		events:     opts.Events,
		reconciler: reconciler,
		scheduler:  scheduler,
		history:    history,
	}
}

// GetOpenSignals 获取开放信号（必要时先刷新价格）
func (s *Service) GetOpenSignals(ctx context.Context) ([]*database.Signal, error) {
	return s.scheduler.OpenSignals(ctx)
}

// GetHistory 获取历史记录（最新在前）
func (s *Service) GetHistory(ctx context.Context) ([]*database.HistoryRecord, error) {
	return s.history.Get(ctx)
}

// GetHistoryStats 获取历史记录统计
func (s *Service) GetHistoryStats(ctx context.Context) (*database.HistoryStats, error) {
	stats, err := s.store.GetHistoryStats(ctx)
	if err != nil {
		return nil, persistenceError("history stats", err)
	}
	return stats, nil
}

// LastRefresh 最近一次价格刷新时间
func (s *Service) LastRefresh(ctx context.Context) (time.Time, error) {
	return s.scheduler.LastRefresh(ctx)
}

// GetSignal 获取单个开放信号（不刷新价格）
func (s *Service) GetSignal(ctx context.Context, id int64) (*database.Signal, error) {
	sig, err := s.store.GetSignal(ctx, id)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, persistenceError("load signal", err)
	}
	return sig, err
}

// CreateSignal 创建开放信号
func (s *Service) CreateSignal(ctx context.Context, sig *database.Signal) error {
	if err := s.normalize(sig); err != nil {
		return err
	}
	if sig.PriceNow <= 0 {
		sig.PriceNow = sig.EnterPrice
	}
	sig.ID = 0
	if err := s.store.CreateSignal(ctx, sig); err != nil {
		return persistenceError("create signal", err)
	}
	logger.Info("新增信号 %s(#%d) %s 入场 %.4f 目标 %.4f", sig.Symbol, sig.ID, sig.Type, sig.EnterPrice, sig.FirstTarget)
	return nil
}

// SignalUpdate 修改开放信号的请求，nil 字段表示不修改。
// 入场价、目标价、开仓日期和说明在创建后不可修改，
// 传入与现值相同的值会被忽略，不同的值返回 *ValidationError。
type SignalUpdate struct {
	Symbol       *string
	Type         *string
	EnterPrice   *float64
	FirstTarget  *float64
	SecondTarget *float64
	DateOpened   *time.Time
	ReasonEn     *string
	ReasonAr     *string
}

func (u *SignalUpdate) checkImmutable(sig *database.Signal) error {
	immutable := func(field string) error {
		return &ValidationError{Field: field, Reason: "is immutable"}
	}
	if u.EnterPrice != nil && *u.EnterPrice != sig.EnterPrice {
		return immutable("enterPrice")
	}
	if u.FirstTarget != nil && *u.FirstTarget != sig.FirstTarget {
		return immutable("firstTarget")
	}
	if u.SecondTarget != nil && *u.SecondTarget != sig.SecondTarget {
		return immutable("secondTarget")
	}
	// 按配置时区的日历日比较，数据库驱动返回的时区可能不同
	if u.DateOpened != nil && !sameDate(*u.DateOpened, sig.DateOpened) {
		return immutable("dateOpened")
	}
	if u.ReasonEn != nil && strings.TrimSpace(*u.ReasonEn) != sig.ReasonEn {
		return immutable("reasonEn")
	}
	if u.ReasonAr != nil && strings.TrimSpace(*u.ReasonAr) != sig.ReasonAr {
		return immutable("reasonAr")
	}
	return nil
}

func sameDate(a, b time.Time) bool {
	const layout = "2006-01-02"
	return utils.ToConfiguredTimezone(a).Format(layout) == utils.ToConfiguredTimezone(b).Format(layout)
}

// UpdateSignal 修改开放信号的代码或方向。价格由对账维护，其余字段不可修改，
// 因此修改不会改变平仓条件。
func (s *Service) UpdateSignal(ctx context.Context, id int64, upd SignalUpdate) (*database.Signal, error) {
	sig, err := s.GetSignal(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := upd.checkImmutable(sig); err != nil {
		return nil, err
	}
	if upd.Symbol != nil {
		sig.Symbol = *upd.Symbol
	}
	if upd.Type != nil {
		sig.Type = *upd.Type
	}
	if err := s.normalize(sig); err != nil {
		return nil, err
	}

	if err := s.store.UpdateSignal(ctx, sig); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		return nil, persistenceError("update signal", err)
	}
	return sig, nil
}

// RefreshSignal 立即刷新单个信号价格，查询失败时返回 *oracle.PriceLookupError。
// 达到目标时信号被归档，返回的 open 为 false。
func (s *Service) RefreshSignal(ctx context.Context, id int64) (sig *database.Signal, open bool, err error) {
	return s.reconciler.RefreshOne(ctx, id)
}

// CloseSignal 手动平仓：按当前价格归档
func (s *Service) CloseSignal(ctx context.Context, id int64) (*database.HistoryRecord, error) {
	return s.reconciler.CloseManually(ctx, id)
}

// DeleteSignal 删除开放信号；closeSignal 为 true 时先按当前价格归档
func (s *Service) DeleteSignal(ctx context.Context, id int64, closeSignal bool) (*database.HistoryRecord, error) {
	if closeSignal {
		return s.CloseSignal(ctx, id)
	}

	if err := s.store.DeleteSignal(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		return nil, persistenceError("delete signal", err)
	}
	logger.Info("信号 #%d 已删除（未归档）", id)
	s.events.Publish(&event.Event{
		Type: event.EventTypeSignalDeleted,
		Data: map[string]interface{}{"id": id},
	})
	return nil, nil
}

// UpdateHistoryReasons 修改历史记录的说明
func (s *Service) UpdateHistoryReasons(ctx context.Context, id int64, reasonEn, reasonAr string) error {
	if err := s.store.UpdateHistoryReasons(ctx, id, strings.TrimSpace(reasonEn), strings.TrimSpace(reasonAr)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return err
		}
		return persistenceError("update history", err)
	}
	s.history.Invalidate()
	return nil
}

// DeleteHistoryRecord 删除历史记录
func (s *Service) DeleteHistoryRecord(ctx context.Context, id int64) error {
	if err := s.store.DeleteHistoryRecord(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return err
		}
		return persistenceError("delete history", err)
	}
	s.history.Invalidate()
	return nil
}

// SetSignalsInterval 修改开放信号刷新间隔
func (s *Service) SetSignalsInterval(d time.Duration) {
	s.scheduler.SetInterval(d)
}

// SetHistoryTTL 修改历史记录缓存时长
func (s *Service) SetHistoryTTL(d time.Duration) {
	s.history.SetTTL(d)
}

// normalize 校验并规范化信号字段
func (s *Service) normalize(sig *database.Signal) error {
	sig.Symbol = oracle.NormalizeSymbol(sig.Symbol)
	if sig.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "is required"}
	}
	if len(sig.Symbol) > 20 {
		return &ValidationError{Field: "symbol", Reason: "is too long"}
	}

	switch strings.ToLower(strings.TrimSpace(sig.Type)) {
	case "buy":
		sig.Type = database.SignalTypeBuy
	case "sell":
		sig.Type = database.SignalTypeSell
	default:
		return &ValidationError{Field: "type", Reason: "must be Buy or Sell"}
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"enterPrice", sig.EnterPrice},
		{"firstTarget", sig.FirstTarget},
	} {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			return &ValidationError{Field: f.name, Reason: "must be a positive number"}
		}
	}
	if sig.SecondTarget < 0 || math.IsNaN(sig.SecondTarget) || math.IsInf(sig.SecondTarget, 0) {
		return &ValidationError{Field: "secondTarget", Reason: "must not be negative"}
	}

	if sig.DateOpened.IsZero() {
		sig.DateOpened = utils.DateOf(s.clock.Now())
	}
	sig.ReasonEn = strings.TrimSpace(sig.ReasonEn)
	sig.ReasonAr = strings.TrimSpace(sig.ReasonAr)
	return nil
}
