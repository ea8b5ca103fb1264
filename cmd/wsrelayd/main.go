// Command wsrelayd is the wsrelay process entrypoint: it wires the
// session/auth gate, the two WebSocket endpoints (/ws and /bunchy),
// the auth-internal HTTP surface, and the optional Redis/NATS domain
// stack, then serves until SIGINT/SIGTERM triggers a graceful
// shutdown. Structure follows the teacher's cmd/main.go: env-driven
// config, fail-fast security checks, gin router construction with a
// fixed middleware order, then a background HTTP server drained on
// signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wsrelay/wsrelay/internal/authgate"
	"github.com/wsrelay/wsrelay/internal/cache"
	"github.com/wsrelay/wsrelay/internal/config"
	"github.com/wsrelay/wsrelay/internal/devctx"
	"github.com/wsrelay/wsrelay/internal/httpapi"
	"github.com/wsrelay/wsrelay/internal/middleware"
	"github.com/wsrelay/wsrelay/internal/router"
	"github.com/wsrelay/wsrelay/internal/session"
	"github.com/wsrelay/wsrelay/internal/userstore"
	"github.com/wsrelay/wsrelay/internal/wslog"
	"github.com/wsrelay/wsrelay/internal/wsserver"
)

func main() {
	wslog.Initialize(getEnvOr("LOG_LEVEL", "info"), os.Getenv("GIN_MODE") == "")

	cfg, err := config.Load()
	if err != nil {
		wslog.GetLogger().Fatal().Err(err).Msg("failed to load configuration")
	}

	users := userstore.NewStore()
	if err := seedUsers(cfg, users); err != nil {
		wslog.GetLogger().Fatal().Err(err).Msg("failed to seed user store")
	}

	redisCache, err := cache.NewCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
		Enabled:  cfg.RedisEnabled,
	})
	if err != nil {
		wslog.GetLogger().Warn().Err(err).Msg("redis cache unavailable, continuing without it")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	sessions := session.NewStore(cfg.CookieName)

	var mirror *session.RedisMirror
	var sweeper *session.Sweeper
	if redisCache.IsEnabled() {
		mirror = session.NewRedisMirror(redisCache, 24*time.Hour)
		sweeper = session.NewSweeper(sessions, mirror, cfg.SessionSoftTTL)
		if err := sweeper.Start(cfg.SweepCronSpec); err != nil {
			wslog.GetLogger().Warn().Err(err).Msg("failed to start session sweep job")
			sweeper = nil
		} else {
			defer sweeper.Stop()
		}
	}

	var devCtx *devctx.Sink
	if cfg.DevCtxOn {
		devCtx = devctx.New()
		if cfg.NATSURL != "" {
			fanout := devctx.NewNATSFanout(cfg.NATSURL)
			devCtx.SetFanout(fanout)
			defer fanout.Close()
		}
	}

	var bearer *authgate.BearerManager
	if cfg.JWTSecret != "" {
		bearer = authgate.NewBearerManager(authgate.BearerConfig{SecretKey: cfg.JWTSecret, Issuer: "wsrelayd"})
	}

	gate := authgate.New(authgate.AllowList(cfg.AllowList), users, authgate.NoSecurityMode(cfg.NoSecurity))

	wsTable := router.NewTable()
	registerWSRoutes(wsTable)
	bunchyTable := router.NewTable()
	registerBunchyRoutes(bunchyTable)

	wsManager := wsserver.NewManager("/ws", wsTable, sessions, gate)
	wsManager.SetDevContext(devCtx)
	bunchyManager := wsserver.NewManager("/bunchy", bunchyTable, sessions, gate)
	bunchyManager.SetDevContext(devCtx)

	if cfg.RedisEnabled && redisCache.IsEnabled() {
		wsManager.EnableClusterRelay(redisCache)
		bunchyManager.EnableClusterRelay(redisCache)
		wslog.GetLogger().Info().Msg("cluster relay enabled for /ws and /bunchy")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(gin.Recovery())
	engine.Use(middleware.StructuredLoggerWithConfigFunc(middleware.DefaultStructuredLoggerConfig()))
	engine.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.GzipWithExclusions(middleware.DefaultCompression, []string{"/ws", "/bunchy"}))

	api := httpapi.New(sessions, users)
	api.Bearer = bearer
	api.DevCtx = devCtx
	api.RegisterRoutes(engine)

	engine.GET("/ws", gin.WrapF(wsManager.HandleUpgrade))
	engine.GET("/bunchy", gin.WrapF(bunchyManager.HandleUpgrade))

	engine.GET("/health", func(c *gin.Context) {
		resp := gin.H{
			"status":             "ok",
			"ws_connections":     wsManager.ConnectionCount(),
			"bunchy_connections": bunchyManager.ConnectionCount(),
		}
		if redisCache.IsEnabled() {
			resp["ws_published"] = wsManager.PublishedCount(c.Request.Context())
			resp["bunchy_published"] = bunchyManager.PublishedCount(c.Request.Context())
			if stats, err := redisCache.GetStats(c.Request.Context()); err == nil {
				resp["redis"] = stats
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.WSPort),
		Handler:           engine,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		wslog.GetLogger().Info().Str("port", cfg.WSPort).Msg("wsrelayd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			wslog.GetLogger().Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	wslog.GetLogger().Info().Str("signal", sig.String()).Msg("starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		wslog.GetLogger().Error().Err(err).Msg("http server forced to shutdown")
	}

	wsManager.CloseAll()
	bunchyManager.CloseAll()
	wsManager.DisableClusterRelay()
	bunchyManager.DisableClusterRelay()

	wslog.GetLogger().Info().Msg("graceful shutdown complete")
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seedUsers loads the optional YAML roster (no-security mode's user
// pool) into the store.
func seedUsers(cfg *config.Config, users *userstore.Store) error {
	seed, err := config.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		return err
	}
	for _, u := range seed.Users {
		createdAt := u.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if err := users.Seed(u.Username, u.Password, userstore.Permissions{Admin: u.Admin}, createdAt, u.TOTPSecret); err != nil {
			wslog.GetLogger().Warn().Err(err).Str("username", u.Username).Msg("skipping duplicate seeded user")
		}
	}
	return nil
}
