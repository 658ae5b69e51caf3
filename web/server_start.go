package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"pharmasignals/config"
	"pharmasignals/logger"
)

// WebServer Web服务器
type WebServer struct {
	server   *http.Server
	cfg      *config.Config
	stopOnce sync.Once
}

// NewRouter 创建带中间件和路由的 Gin 引擎
func NewRouter(logAll bool, hub *WebSocketHub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(GinLoggerMiddleware(logAll))
	r.Use(I18nMiddleware())

	SetupRoutes(r, hub)
	return r
}

// NewWebServer 创建Web服务器，未启用时返回 nil
func NewWebServer(cfg *config.Config, hub *WebSocketHub) *WebServer {
	if !cfg.Web.Enabled {
		return nil
	}

	// 设置Gin模式
	if logger.ParseLogLevel(cfg.System.LogLevel) == logger.DEBUG {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := logger.InitWebLogger(); err != nil {
		logger.Warn("⚠️ 初始化 Web 访问日志失败: %v", err)
	}

	GetSessionManager().SetSessionTimeout(time.Duration(cfg.Web.SessionTimeout) * time.Hour)
	SetAdminUsername(cfg.Web.AdminUsername)

	r := NewRouter(cfg.Web.AccessLog, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 读取信号可能触发一次价格刷新
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &WebServer{
		server: server,
		cfg:    cfg,
	}
}

// Start 启动Web服务器，ctx 取消时关闭
func (ws *WebServer) Start(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	go func() {
		logger.Info("🌐 Web服务器启动在 http://%s", ws.server.Addr)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ Web服务器启动失败: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		ws.Stop()
	}()

	return nil
}

// Stop 停止Web服务器
func (ws *WebServer) Stop() {
	if ws == nil || ws.server == nil {
		return
	}

	ws.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ws.server.Shutdown(ctx); err != nil {
			logger.Error("❌ Web服务器关闭失败: %v", err)
		} else {
			logger.Info("✅ Web服务器已关闭")
		}
	})
}
