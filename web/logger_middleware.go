package web

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"pharmasignals/logger"
	"pharmasignals/metrics"
)

// GinLoggerMiddleware 自定义 Gin 日志中间件
// logAll=true 时全量输出；否则仅记录错误请求 (状态码 >= 400)
func GinLoggerMiddleware(logAll bool) gin.HandlerFunc {
	pm := metrics.GetPrometheusMetrics()

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		method := c.Request.Method

		// 按路由模板统计，避免 ID 造成标签爆炸
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		pm.RecordHTTPRequest(method, route, statusCode)

		if !logAll && statusCode < 400 {
			return
		}

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		logMessage := fmt.Sprintf("[GIN] %d | %v | %s | %s | %-7s %s",
			statusCode,
			latency,
			c.ClientIP(),
			GetRequestID(c),
			method,
			path,
		)
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			logMessage += " | Error: " + errorMessage
		}

		logger.WriteWebLog(logMessage)
	}
}
