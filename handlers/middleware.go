package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"welfare-server-go/auth"
	"welfare-server-go/models"
)

const (
	sessionCookie = "session"
	sessionCtxKey = "session"
)

// RequestLogger logs one line per request
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if sess, ok := currentSession(c); ok {
			fields = append(fields, zap.String("user", sess.Username))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// RequireAuth rejects requests without a valid session token
func (h *APIHandler) RequireAuth(c *gin.Context) {
	sess, err := h.Auth.Authenticate(c.Request.Context(), tokenFrom(c))
	if err != nil {
		h.respondError(c, err, "Failed to verify session")
		return
	}
	c.Set(sessionCtxKey, sess)
	c.Next()
}

// RequireRole rejects sessions without role. It must run after RequireAuth.
func (h *APIHandler) RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := currentSession(c)
		if err := auth.RequireRole(sess, role); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Only " + string(role) + " users may do this"})
			return
		}
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return cookie
	}
	return ""
}

func currentSession(c *gin.Context) (models.Session, bool) {
	v, ok := c.Get(sessionCtxKey)
	if !ok {
		return models.Session{}, false
	}
	sess, ok := v.(models.Session)
	return sess, ok
}
