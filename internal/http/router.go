// Package http assembles the gin router: middleware chain, endpoint classes,
// and route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/config"
	"github.com/lurkd/lurkd/internal/http/handler"
	httpmiddleware "github.com/lurkd/lurkd/internal/http/middleware"
	"github.com/lurkd/lurkd/internal/middleware"
	"github.com/lurkd/lurkd/internal/service/session"
)

// RouterParams carries everything the router needs. Read and Mutate limiters
// are separate instances so mutating endpoints get the stricter budget.
type RouterParams struct {
	Config      config.Config
	Logger      *zap.Logger
	Sessions    *session.Service
	Auth        *handler.AuthHandler
	Reddit      *handler.RedditHandler
	ReadLimit   *middleware.RateLimiter
	MutateLimit *middleware.RateLimiter
}

// NewRouter builds the HTTP routing tree.
func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(p.Logger))
	r.Use(middleware.CORS(p.Config))
	r.Use(otelgin.Middleware(p.Config.ServiceName))
	r.Use(middleware.SessionResolver(p.Sessions, p.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sameOrigin := middleware.RequireSameOrigin(p.Config.PublicOrigin)

	auth := r.Group("/auth")
	{
		auth.GET("/login", p.Auth.Login)
		auth.GET("/callback", p.Auth.Callback)
		auth.GET("/session", p.Auth.SessionInfo)
		auth.POST("/logout", sameOrigin, p.MutateLimit.Handler(), p.Auth.Logout)
	}

	reddit := r.Group("/reddit")
	{
		read := reddit.Group("", p.ReadLimit.Handler())
		read.GET("/popular", p.Reddit.Popular)
		read.GET("/subreddit", p.Reddit.Subreddit)
		read.GET("/comments", p.Reddit.Comments)
		read.GET("/user", p.Reddit.User)
		read.GET("/saved", p.Reddit.Saved)
		read.GET("/about", p.Reddit.About)

		reddit.POST("/vote", sameOrigin, p.MutateLimit.Handler(), p.Reddit.Vote)
	}

	return r
}
