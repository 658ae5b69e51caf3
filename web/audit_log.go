package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pharmasignals/logger"
)

// AuditLog 管理操作审计记录
type AuditLog struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Username  string    `json:"username"`
	IP        string    `json:"ip"`
	Action    string    `json:"action"`   // HTTP 方法
	Resource  string    `json:"resource"` // 请求路径
	Status    string    `json:"status"`   // success, failed
	Code      int       `json:"code"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
}

func (a *AuditLog) String() string {
	s := fmt.Sprintf("[审计] %s %s %s user=%s ip=%s status=%s(%d) rid=%s",
		a.Timestamp.Format(time.RFC3339), a.Action, a.Resource, a.Username, a.IP, a.Status, a.Code, a.RequestID)
	if a.ErrorMsg != "" {
		s += " error=" + a.ErrorMsg
	}
	return s
}

// AuditMiddleware 记录管理员的写操作（GET 不记录），需放在 authMiddleware 之后
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}

		entry := &AuditLog{
			Timestamp: time.Now(),
			RequestID: GetRequestID(c),
			Username:  c.GetString("username"),
			IP:        c.ClientIP(),
			Action:    c.Request.Method,
			Resource:  c.Request.URL.Path,
			Code:      c.Writer.Status(),
			Status:    "success",
		}
		if entry.Code >= http.StatusBadRequest {
			entry.Status = "failed"
			if len(c.Errors) > 0 {
				entry.ErrorMsg = c.Errors.Last().Error()
			}
			logger.Warn("📝 %s", entry)
			return
		}
		logger.Info("📝 %s", entry)
	}
}
