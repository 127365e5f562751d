package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/lurkd/lurkd/internal/adapter/cache"
	redditadapter "github.com/lurkd/lurkd/internal/adapter/reddit"
	"github.com/lurkd/lurkd/internal/config"
	"github.com/lurkd/lurkd/internal/gateway"
	httptransport "github.com/lurkd/lurkd/internal/http"
	"github.com/lurkd/lurkd/internal/http/handler"
	"github.com/lurkd/lurkd/internal/middleware"
	"github.com/lurkd/lurkd/internal/server"
	"github.com/lurkd/lurkd/internal/service/session"
	"github.com/lurkd/lurkd/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newRedisClient,
			newSessionStore,
			newStateStore,
			newRedditClient,
			newSessionService,
			newProxy,
			newReadLimiter,
			newMutateLimiter,
			newAuthHandler,
			newRedditHandler,
			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newSessionStore(client redis.UniversalClient, cfg config.Config) session.Store {
	return cacheadapter.NewRedisSessionStore(client, cfg.SessionKey, cfg.SessionTTL)
}

func newStateStore(client redis.UniversalClient) session.StateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newRedditClient(cfg config.Config) redditadapter.Client {
	return redditadapter.NewHTTPClient(cfg, nil)
}

func newSessionService(store session.Store, states session.StateStore, client redditadapter.Client, cfg config.Config, logger *zap.Logger) *session.Service {
	return session.NewService(store, states, client, cfg, logger)
}

func newProxy(client redditadapter.Client, sessions *session.Service, logger *zap.Logger) *gateway.Proxy {
	return gateway.NewProxy(client, sessions, logger)
}

type readLimiter struct {
	fx.Out
	Limiter *middleware.RateLimiter `name:"read"`
}

func newReadLimiter(cfg config.Config) readLimiter {
	return readLimiter{Limiter: middleware.NewRateLimiter(cfg.ReadRateRPM)}
}

type mutateLimiter struct {
	fx.Out
	Limiter *middleware.RateLimiter `name:"mutate"`
}

func newMutateLimiter(cfg config.Config) mutateLimiter {
	return mutateLimiter{Limiter: middleware.NewRateLimiter(cfg.MutateRateRPM)}
}

func newAuthHandler(sessions *session.Service, cfg config.Config, logger *zap.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(sessions, cfg, logger)
}

func newRedditHandler(proxy *gateway.Proxy, logger *zap.Logger) *handler.RedditHandler {
	return handler.NewRedditHandler(proxy, logger)
}

type routerDeps struct {
	fx.In
	Config      config.Config
	Logger      *zap.Logger
	Sessions    *session.Service
	Auth        *handler.AuthHandler
	Reddit      *handler.RedditHandler
	ReadLimit   *middleware.RateLimiter `name:"read"`
	MutateLimit *middleware.RateLimiter `name:"mutate"`
}

func newRouter(deps routerDeps) *gin.Engine {
	return httptransport.NewRouter(httptransport.RouterParams{
		Config:      deps.Config,
		Logger:      deps.Logger,
		Sessions:    deps.Sessions,
		Auth:        deps.Auth,
		Reddit:      deps.Reddit,
		ReadLimit:   deps.ReadLimit,
		MutateLimit: deps.MutateLimit,
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
