package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/config"
	"github.com/lurkd/lurkd/internal/middleware"
	"github.com/lurkd/lurkd/internal/redact"
	"github.com/lurkd/lurkd/internal/service/session"
)

// noStore is the cache-prevention header value for auth responses.
const noStore = "private, no-cache, no-store, must-revalidate"

// AuthHandler serves the session lifecycle endpoints.
type AuthHandler struct {
	sessions *session.Service
	cfg      config.Config
	logger   *zap.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(sessions *session.Service, cfg config.Config, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{sessions: sessions, cfg: cfg, logger: logger}
}

func (h *AuthHandler) secureCookies() bool {
	return h.cfg.Environment != "development"
}

// Login redirects the browser to the provider's authorization page.
func (h *AuthHandler) Login(c *gin.Context) {
	authURL, err := h.sessions.BeginLogin(c.Request.Context())
	if err != nil {
		h.logger.Error("begin login", zap.String("error", redact.Error(err)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start login"})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback redeems the authorization code and establishes the session.
func (h *AuthHandler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		// The user declined or the provider rejected; nothing secret here.
		c.Redirect(http.StatusFound, "/?login=denied")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code or state"})
		return
	}

	sess, err := h.sessions.CreateFromAuthorization(c.Request.Context(), code, state)
	if err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login state"})
			return
		}
		h.logger.Error("authorization callback", zap.String("error", redact.Error(err)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete login"})
		return
	}

	middleware.SetSessionCookie(c, sess.ID, int(h.cfg.SessionTTL.Seconds()), h.secureCookies())
	c.Redirect(http.StatusFound, "/")
}

// SessionInfo returns the token-free session projection. Anonymous callers
// get the same shape with isAuthenticated=false.
func (h *AuthHandler) SessionInfo(c *gin.Context) {
	c.Header("Cache-Control", noStore)
	sess, _ := middleware.GetSession(c)
	c.JSON(http.StatusOK, sess.Project())
}

// Logout destroys the session and clears the cookie. Idempotent: logging out
// twice succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.Header("Cache-Control", noStore)

	if sess, ok := middleware.GetSession(c); ok {
		if err := h.sessions.Destroy(c.Request.Context(), sess.ID); err != nil {
			h.logger.Error("logout", zap.String("error", redact.Error(err)))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout. Please try again."})
			return
		}
	}

	middleware.ClearSessionCookie(c, h.secureCookies())
	c.JSON(http.StatusOK, gin.H{"success": true})
}
