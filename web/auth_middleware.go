package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmasignals/logger"
)

// authMiddleware 认证中间件
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sm := GetSessionManager()

		session, exists := sm.GetSessionFromRequest(c.Request)
		if !exists || session == nil {
			key := "error.not_logged_in"
			if _, err := c.Cookie(sessionCookieName); err == nil {
				key = "error.session_expired"
			}
			logger.Debug("认证失败: %s %s (%s)", c.Request.Method, c.Request.URL.Path, c.ClientIP())
			respondError(c, http.StatusUnauthorized, key)
			c.Abort()
			return
		}

		// 将会话信息存储到上下文中，供后续处理使用
		c.Set("session", session)
		c.Set("username", session.Username)

		c.Next()
	}
}
