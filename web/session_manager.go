package web

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pharmasignals/logger"
)

const sessionCookieName = "session_id"

// Session 会话信息
type Session struct {
	SessionID string
	Username  string
	IP        string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionManager 管理员会话管理器（内存存储，重启后需重新登录）
// map 的键是令牌的 SHA-256 摘要，明文令牌只出现在 Cookie 中
type SessionManager struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	sessionTimeout time.Duration
}

// NewSessionManager 创建会话管理器，并每小时清理一次过期会话
func NewSessionManager() *SessionManager {
	sm := newSessionManager(24 * time.Hour)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for now := range ticker.C {
			if n := sm.purgeExpired(now); n > 0 {
				logger.Debug("🧹 已清理 %d 个过期会话", n)
			}
		}
	}()
	return sm
}

func newSessionManager(timeout time.Duration) *SessionManager {
	return &SessionManager{
		sessions:       make(map[string]*Session),
		sessionTimeout: timeout,
	}
}

// SetSessionTimeout 设置会话有效期（只影响之后创建的会话）
func (sm *SessionManager) SetSessionTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessionTimeout = d
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession 创建会话，返回的 SessionID 即 Cookie 令牌
func (sm *SessionManager) CreateSession(username, ip, userAgent string) (*Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("生成会话ID失败: %w", err)
	}
	// 无填充的 URL 安全编码，Cookie 中不出现 '='
	token := base64.RawURLEncoding.EncodeToString(b)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	session := &Session{
		SessionID: token,
		Username:  username,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.sessionTimeout),
	}
	sm.sessions[tokenKey(token)] = session
	return session, nil
}

// GetSession 获取未过期的会话，过期会话顺便删除
func (sm *SessionManager) GetSession(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	key := tokenKey(token)

	sm.mu.RLock()
	session, exists := sm.sessions[key]
	sm.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if time.Now().After(session.ExpiresAt) {
		sm.mu.Lock()
		delete(sm.sessions, key)
		sm.mu.Unlock()
		return nil, false
	}
	return session, true
}

// DeleteSession 删除会话
func (sm *SessionManager) DeleteSession(token string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, tokenKey(token))
}

// DeleteUserSessions 删除某个管理员的全部会话（修改密码后调用）
func (sm *SessionManager) DeleteUserSessions(username string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for key, session := range sm.sessions {
		if session.Username == username {
			delete(sm.sessions, key)
			n++
		}
	}
	return n
}

// Count 当前会话数（含尚未清理的过期会话）
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) purgeExpired(now time.Time) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for key, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, key)
			n++
		}
	}
	return n
}

// GetSessionFromRequest 从请求中获取会话
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, false
	}
	return sm.GetSession(cookie.Value)
}

// SetSessionCookie 设置会话Cookie
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.SessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
	})
}

// ClearSessionCookie 清除会话Cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// 全局会话管理器
var (
	globalSessionManager *SessionManager
	sessionManagerOnce   sync.Once
)

// GetSessionManager 获取全局会话管理器
func GetSessionManager() *SessionManager {
	sessionManagerOnce.Do(func() {
		globalSessionManager = NewSessionManager()
	})
	return globalSessionManager
}
