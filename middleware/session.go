package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "session_id"
	SessionHeaderName = "X-Session-ID"
	SessionTimeout    = 24 * time.Hour
	sessionContextKey = "sessionID"
)

type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// SessionManager 会话表，每个会话的任务和文件相互隔离
type SessionManager struct {
	sessions map[string]*Session
	timeout  time.Duration
	now      func() time.Time
	mu       sync.RWMutex
}

// NewSessionManager 创建会话管理器，timeout 为 0 时使用 SessionTimeout
func NewSessionManager(timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = SessionTimeout
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// GetOrCreateSession 获取或创建会话
func (sm *SessionManager) GetOrCreateSession(sessionID string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	now := sm.now()

	if sessionID != "" {
		if session, exists := sm.sessions[sessionID]; exists {
			if now.Sub(session.LastSeen) < sm.timeout {
				session.LastSeen = now
				return session
			}
			delete(sm.sessions, sessionID)
		}
	}

	newSession := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		LastSeen:  now,
	}
	sm.sessions[newSession.ID] = newSession
	return newSession
}

// GetSession 获取会话（不创建新会话）
func (sm *SessionManager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil, false
	}
	if sm.now().Sub(session.LastSeen) >= sm.timeout {
		delete(sm.sessions, sessionID)
		return nil, false
	}
	session.LastSeen = sm.now()
	return session, true
}

// Cleanup 删除过期会话，返回删除的 ID
func (sm *SessionManager) Cleanup() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	now := sm.now()
	var expired []string
	for id, session := range sm.sessions {
		if now.Sub(session.LastSeen) >= sm.timeout {
			delete(sm.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// StartCleanup 定期清理过期会话，ctx 结束时停止；onExpire 可为 nil
func (sm *SessionManager) StartCleanup(ctx context.Context, interval time.Duration, onExpire func(ids []string)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ids := sm.Cleanup(); len(ids) > 0 && onExpire != nil {
					onExpire(ids)
				}
			}
		}
	}()
}

// Middleware Gin 中间件：确保每个请求都有会话
//
// 先读 X-Session-ID 请求头，再读 Cookie；新会话的 ID 同时写回 Cookie 与响应头。
func (sm *SessionManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(SessionHeaderName)
		if sessionID == "" {
			sessionID, _ = c.Cookie(SessionCookieName)
		}

		session := sm.GetOrCreateSession(sessionID)

		if sessionID != session.ID {
			isSecure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
			c.SetCookie(
				SessionCookieName,
				session.ID,
				int(sm.timeout.Seconds()),
				"/",
				"",
				isSecure,
				true, // httpOnly
			)
		}
		c.Header(SessionHeaderName, session.ID)
		c.Set(sessionContextKey, session.ID)
		c.Next()
	}
}

// GetSessionID 从上下文获取会话 ID
func GetSessionID(c *gin.Context) string {
	sessionID, exists := c.Get(sessionContextKey)
	if !exists {
		return ""
	}
	if id, ok := sessionID.(string); ok {
		return id
	}
	return ""
}
