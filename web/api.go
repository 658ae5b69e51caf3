package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pharmasignals/database"
	"pharmasignals/logger"
	"pharmasignals/oracle"
	"pharmasignals/signals"
)

// SignalService 信号服务接口（由 signals.Service 实现）
type SignalService interface {
	GetOpenSignals(ctx context.Context) ([]*database.Signal, error)
	GetHistory(ctx context.Context) ([]*database.HistoryRecord, error)
	GetHistoryStats(ctx context.Context) (*database.HistoryStats, error)
	LastRefresh(ctx context.Context) (time.Time, error)

	GetSignal(ctx context.Context, id int64) (*database.Signal, error)
	CreateSignal(ctx context.Context, sig *database.Signal) error
	UpdateSignal(ctx context.Context, id int64, upd signals.SignalUpdate) (*database.Signal, error)
	RefreshSignal(ctx context.Context, id int64) (*database.Signal, bool, error)
	CloseSignal(ctx context.Context, id int64) (*database.HistoryRecord, error)
	DeleteSignal(ctx context.Context, id int64, closeSignal bool) (*database.HistoryRecord, error)
	UpdateHistoryReasons(ctx context.Context, id int64, reasonEn, reasonAr string) error
	DeleteHistoryRecord(ctx context.Context, id int64) error
}

// HealthChecker 健康检查依赖（数据库）
type HealthChecker interface {
	Ping(ctx context.Context) error
}

var (
	signalService   SignalService
	healthChecker   HealthChecker
	passwordManager *PasswordManager
	adminUsername   = "admin"
	appVersion      = "dev"
)

// SetSignalService 设置信号服务
func SetSignalService(svc SignalService) {
	signalService = svc
}

// SetHealthChecker 设置健康检查依赖
func SetHealthChecker(hc HealthChecker) {
	healthChecker = hc
}

// SetPasswordManager 设置密码管理器
func SetPasswordManager(pm *PasswordManager) {
	passwordManager = pm
}

// SetAdminUsername 设置管理员用户名
func SetAdminUsername(username string) {
	if username != "" {
		adminUsername = username
	}
}

// SetVersion 设置版本号
func SetVersion(version string) {
	appVersion = version
}

// respondError 返回本地化的错误信息
func respondError(c *gin.Context, status int, key string, data ...interface{}) {
	c.JSON(status, gin.H{
		"error": T(c, key, data...),
		"code":  key,
	})
}

// respondServiceError 将服务层错误映射为 HTTP 状态码
func respondServiceError(c *gin.Context, err error, notFoundKey string) {
	var (
		validationErr *signals.ValidationError
		lookupErr     *oracle.PriceLookupError
	)

	_ = c.Error(err)
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(c, http.StatusNotFound, notFoundKey)
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, "error.invalid_signal", map[string]interface{}{
			"Reason": validationErr.Field + " " + validationErr.Reason,
		})
	case errors.As(err, &lookupErr):
		logger.Warn("⚠️ [%s] 价格查询失败: %v", GetRequestID(c), err)
		respondError(c, http.StatusBadGateway, "error.price_lookup_failed", map[string]interface{}{
			"Symbol": lookupErr.Symbol,
		})
	case errors.Is(err, context.Canceled):
		// 客户端已断开
		c.Status(499)
	default:
		logger.Error("❌ [%s] %s %s 失败: %v", GetRequestID(c), c.Request.Method, c.FullPath(), err)
		respondError(c, http.StatusInternalServerError, "error.internal")
	}
}

// parseID 解析路径中的 :id
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "error.invalid_id")
		return 0, false
	}
	return id, true
}

// getVersion 获取版本号
// GET /api/version
func getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": appVersion})
}

// healthCheck 健康检查
// GET /health
func healthCheck(c *gin.Context) {
	if healthChecker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := healthChecker.Ping(ctx); err != nil {
			logger.Warn("⚠️ 健康检查失败: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": appVersion})
}
