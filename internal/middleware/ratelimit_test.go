package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(rpm int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(rpm).Handler())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	r := newLimitedRouter(600)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterLimitsWithRetryAfter(t *testing.T) {
	// 10 rpm gives burst 1: the second immediate request must be limited.
	r := newLimitedRouter(10)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.NotEmpty(t, second.Header().Get("Retry-After"))
	require.Contains(t, second.Body.String(), "rate_limited")
	require.Contains(t, second.Body.String(), "retryAfter")
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	r := newLimitedRouter(10)

	first := httptest.NewRecorder()
	reqA := httptest.NewRequest(http.MethodGet, "/ping", nil)
	reqA.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "client-a"})
	r.ServeHTTP(first, reqA)
	require.Equal(t, http.StatusOK, first.Code)

	// A different session has its own budget.
	second := httptest.NewRecorder()
	reqB := httptest.NewRequest(http.MethodGet, "/ping", nil)
	reqB.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "client-b"})
	r.ServeHTTP(second, reqB)
	require.Equal(t, http.StatusOK, second.Code)
}

func TestNilRateLimiterPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(0).Handler())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRequireSameOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireSameOrigin("https://lurkd.example"))
	r.POST("/vote", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/feed", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Mutating request from our own origin passes.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/vote", nil)
	req.Header.Set("Origin", "https://lurkd.example")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Cross-site mutating request is rejected with a generic 403.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/vote", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.NotContains(t, w.Body.String(), "evil.example")

	// Reads are exempt from the origin check.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
