package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmasignals/logger"
)

// getAuthStatus 获取认证状态
// GET /api/auth/status
func getAuthStatus(c *gin.Context) {
	hasPassword := false
	if passwordManager != nil {
		var err error
		if hasPassword, err = passwordManager.HasPassword(c.Request.Context(), adminUsername); err != nil {
			logger.Warn("⚠️ 查询管理员账户失败: %v", err)
		}
	}

	session, authenticated := GetSessionManager().GetSessionFromRequest(c.Request)
	resp := gin.H{
		"hasPassword":     hasPassword,
		"isAuthenticated": authenticated,
	}
	if authenticated {
		resp["username"] = session.Username
		resp["expiresAt"] = session.ExpiresAt
	}
	c.JSON(http.StatusOK, resp)
}

// login 验证密码并创建会话
// POST /api/auth/login
func login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request")
		return
	}
	if req.Username == "" {
		req.Username = adminUsername
	}

	if passwordManager == nil || req.Username != adminUsername {
		respondError(c, http.StatusUnauthorized, "error.invalid_credentials")
		return
	}

	valid, err := passwordManager.VerifyPassword(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.Error("❌ 验证密码失败: %v", err)
		respondError(c, http.StatusInternalServerError, "error.internal")
		return
	}
	if !valid {
		logger.Warn("⚠️ 管理员登录失败: %s (%s)", req.Username, c.ClientIP())
		respondError(c, http.StatusUnauthorized, "error.invalid_credentials")
		return
	}

	sm := GetSessionManager()
	session, err := sm.CreateSession(req.Username, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		logger.Error("❌ 创建会话失败: %v", err)
		respondError(c, http.StatusInternalServerError, "error.internal")
		return
	}
	sm.SetSessionCookie(c.Writer, session, c.Request.TLS != nil)

	logger.Info("🔐 管理员 %s 已登录 (%s)", req.Username, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": T(c, "message.logged_in"),
	})
}

// logout 退出登录
// POST /api/auth/logout
func logout(c *gin.Context) {
	sm := GetSessionManager()
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie != "" {
		sm.DeleteSession(cookie)
	}
	sm.ClearSessionCookie(c.Writer)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": T(c, "message.logged_out"),
	})
}
