package web

import (
	"net/http"
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes 设置路由，hub 为 nil 时不提供 /ws
func SetupRoutes(r *gin.Engine, hub *WebSocketHub) {
	r.GET("/health", healthCheck)

	// Prometheus metrics 端点（不需要认证，供 Prometheus 抓取）
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// pprof 性能分析端点（需要管理员登录）
	pprofGroup := r.Group("/debug/pprof", authMiddleware())
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	}

	api := r.Group("/api")
	{
		api.GET("/version", getVersion)

		// 公开的信号接口
		api.GET("/signals", getSignals)
		api.GET("/signals/history", getHistory)
		api.GET("/signals/history/stats", getHistoryStats)

		auth := api.Group("/auth")
		{
			auth.GET("/status", getAuthStatus)
			auth.POST("/login", login)
			auth.POST("/logout", logout)
		}

		// 需要认证的管理接口
		admin := api.Group("/admin")
		admin.Use(authMiddleware(), AuditMiddleware())
		{
			adminSignals := admin.Group("/signals")
			{
				adminSignals.POST("", createSignal)
				adminSignals.GET("/:id", getAdminSignal)
				adminSignals.PUT("/:id", updateSignal)
				adminSignals.POST("/:id/refresh", refreshSignal)
				adminSignals.POST("/:id/close", closeSignal)
				adminSignals.DELETE("/:id", deleteSignal)
			}

			adminHistory := admin.Group("/history")
			{
				adminHistory.PUT("/:id", updateHistory)
				adminHistory.DELETE("/:id", deleteHistory)
			}
		}
	}

	if hub != nil {
		r.GET("/ws", hub.handleWebSocket)
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "error.route_not_found")
	})
}
