package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// 价格源指标
	oracleRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasignals_oracle_request_total",
			Help: "Total number of price lookups by provider and status",
		},
		[]string{"provider", "status"},
	)

	oracleRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmasignals_oracle_request_duration_seconds",
			Help:    "Price lookup duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"provider"},
	)

	oracleRateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmasignals_oracle_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the outbound rate limiter",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 15.0},
		},
		[]string{"provider"},
	)

	// 对账指标
	reconciliationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasignals_reconciliation_total",
			Help: "Total number of reconciliation passes by result",
		},
		[]string{"result"},
	)

	reconciliationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pharmasignals_reconciliation_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
	)

	priceLookupFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasignals_price_lookup_failure_total",
			Help: "Total number of failed price lookups during reconciliation",
		},
		[]string{"symbol"},
	)

	signalClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasignals_signal_closed_total",
			Help: "Total number of signals moved to history",
		},
		[]string{"reason", "success"},
	)

	openSignals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasignals_open_signals",
			Help: "Number of open signals after the last read",
		},
	)

	signalPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pharmasignals_signal_price",
			Help: "Latest price observed for a symbol",
		},
		[]string{"symbol"},
	)

	lastRefreshTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasignals_last_refresh_timestamp_seconds",
			Help: "Unix time of the last completed price refresh",
		},
	)

	// 缓存指标
	cacheReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasignals_cache_read_total",
			Help: "Reads served from cache (hit) or by refreshing (miss)",
		},
		[]string{"cache", "result"},
	)

	// 分布式锁指标
	lockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasignals_lock_acquire_total",
			Help: "Total number of lock acquire attempts",
		},
		[]string{"key", "status"},
	)

	// 进程指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasignals_goroutines",
			Help: "Number of goroutines",
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasignals_process_cpu_percent",
			Help: "Process CPU usage percent",
		},
	)

	processMemoryRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasignals_process_memory_rss_bytes",
			Help: "Process resident memory in bytes",
		},
	)

	systemMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasignals_system_memory_used_percent",
			Help: "Host memory usage percent",
		},
	)

	// HTTP 指标
	httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasignals_http_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasignals_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct{}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

// RecordOracleRequest 记录一次价格查询
func (pm *PrometheusMetrics) RecordOracleRequest(provider, status string, duration time.Duration) {
	oracleRequestTotal.WithLabelValues(provider, status).Inc()
	oracleRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateLimitWait 记录限流等待时间
func (pm *PrometheusMetrics) RecordRateLimitWait(provider string, wait time.Duration) {
	oracleRateLimitWait.WithLabelValues(provider).Observe(wait.Seconds())
}

// RecordReconciliation 记录一次对账
func (pm *PrometheusMetrics) RecordReconciliation(result string, duration time.Duration) {
	reconciliationTotal.WithLabelValues(result).Inc()
	reconciliationDuration.Observe(duration.Seconds())
}

// RecordPriceLookupFailure 记录对账中的价格查询失败
func (pm *PrometheusMetrics) RecordPriceLookupFailure(symbol string) {
	priceLookupFailureTotal.WithLabelValues(symbol).Inc()
}

// RecordSignalClosed 记录信号归档
func (pm *PrometheusMetrics) RecordSignalClosed(reason string, success bool) {
	signalClosedTotal.WithLabelValues(reason, strconv.FormatBool(success)).Inc()
}

// SetOpenSignals 设置开放信号数量
func (pm *PrometheusMetrics) SetOpenSignals(count int) {
	openSignals.Set(float64(count))
}

// SetSignalPrice 设置最新价格
func (pm *PrometheusMetrics) SetSignalPrice(symbol string, price float64) {
	signalPrice.WithLabelValues(symbol).Set(price)
}

// SetLastRefresh 设置最近一次刷新时间
func (pm *PrometheusMetrics) SetLastRefresh(t time.Time) {
	lastRefreshTimestamp.Set(float64(t.Unix()))
}

// RecordCacheRead 记录缓存读取
func (pm *PrometheusMetrics) RecordCacheRead(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheReadTotal.WithLabelValues(cache, result).Inc()
}

// RecordLockAcquire 记录锁获取（status: acquired, conflict, error）
func (pm *PrometheusMetrics) RecordLockAcquire(key, status string) {
	lockAcquireTotal.WithLabelValues(key, status).Inc()
}

// SetGoroutineCount 设置 Goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetProcessStats 设置进程 CPU 和内存
func (pm *PrometheusMetrics) SetProcessStats(cpuPercent float64, rssBytes uint64) {
	processCPUPercent.Set(cpuPercent)
	processMemoryRSS.Set(float64(rssBytes))
}

// SetSystemMemoryPercent 设置主机内存使用率
func (pm *PrometheusMetrics) SetSystemMemoryPercent(percent float64) {
	systemMemoryPercent.Set(percent)
}

// RecordHTTPRequest 记录 HTTP 请求
func (pm *PrometheusMetrics) RecordHTTPRequest(method, route string, status int) {
	httpRequestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// SetWebSocketClients 设置 WebSocket 连接数
func (pm *PrometheusMetrics) SetWebSocketClients(count int) {
	websocketClients.Set(float64(count))
}

// 全局实例
var globalPrometheusMetrics *PrometheusMetrics

// GetPrometheusMetrics 获取全局 Prometheus 指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}
