package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"pharmasignals/logger"
)

// SystemMetricsCollector 进程与主机指标采集器
type SystemMetricsCollector struct {
	pm       *PrometheusMetrics
	proc     *process.Process
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSystemMetricsCollector 创建系统指标采集器
func NewSystemMetricsCollector(interval time.Duration) *SystemMetricsCollector {
	ctx, cancel := context.WithCancel(context.Background())

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("⚠️ 获取进程信息失败，进程指标不可用: %v", err)
	}

	return &SystemMetricsCollector{
		pm:       GetPrometheusMetrics(),
		proc:     proc,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动采集
func (smc *SystemMetricsCollector) Start() {
	go smc.collectLoop()
}

// Stop 停止采集
func (smc *SystemMetricsCollector) Stop() {
	if smc.cancel != nil {
		smc.cancel()
	}
}

func (smc *SystemMetricsCollector) collectLoop() {
	ticker := time.NewTicker(smc.interval)
	defer ticker.Stop()

	smc.collect()

	for {
		select {
		case <-smc.ctx.Done():
			return
		case <-ticker.C:
			smc.collect()
		}
	}
}

// collect 采集一次指标
func (smc *SystemMetricsCollector) collect() {
	smc.pm.SetGoroutineCount(runtime.NumGoroutine())

	if smc.proc != nil {
		cpuPercent, err := smc.proc.PercentWithContext(smc.ctx, 0)
		if err != nil {
			logger.Debug("采集进程 CPU 失败: %v", err)
		}
		memInfo, err := smc.proc.MemoryInfoWithContext(smc.ctx)
		if err != nil {
			logger.Debug("采集进程内存失败: %v", err)
		} else {
			smc.pm.SetProcessStats(cpuPercent, memInfo.RSS)
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(smc.ctx); err == nil {
		smc.pm.SetSystemMemoryPercent(vm.UsedPercent)
	}
}
