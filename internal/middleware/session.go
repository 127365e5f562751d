package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/domain"
	"github.com/lurkd/lurkd/internal/redact"
	"github.com/lurkd/lurkd/internal/service/session"
)

// SessionCookieName is the opaque session id cookie. Only the id crosses the
// wire; the session itself, tokens included, stays server-side.
const SessionCookieName = "lurkd_session"

const sessionContextKey = "lurkdSession"

// SessionResolver loads the caller's session from the cookie, if any, and
// attaches it to the request context as an explicit handle. Handlers that
// require authentication check for its presence; anonymous requests proceed
// with no session attached.
func SessionResolver(sessions *session.Service, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookieName)
		if err != nil || id == "" {
			c.Next()
			return
		}
		sess, err := sessions.Resolve(c.Request.Context(), id)
		if err != nil {
			logger.Error("resolve session", zap.String("error", redact.Error(err)))
			c.Next()
			return
		}
		if sess != nil {
			c.Set(sessionContextKey, sess)
		}
		c.Next()
	}
}

// GetSession returns the resolved session handle, when present.
func GetSession(c *gin.Context) (*domain.Session, bool) {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := value.(*domain.Session)
	return sess, ok && sess != nil
}

// SetSessionCookie writes the session id cookie with HttpOnly and
// SameSite=Lax. Secure is set outside development so local HTTP still works.
func SetSessionCookie(c *gin.Context, id string, maxAge int, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie overwrites the cookie with MaxAge=-1 to trigger browser
// deletion.
func ClearSessionCookie(c *gin.Context, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
