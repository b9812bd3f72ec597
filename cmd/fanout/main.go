package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/services"
	"voicecast/internal/infrastructure/fanout"
	"voicecast/internal/infrastructure/middleware"
	"voicecast/internal/infrastructure/monitoring"
	"voicecast/internal/infrastructure/repositories"
	"voicecast/pkg/config"
	"voicecast/pkg/logger"
	"voicecast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	repoFactory, err := repositories.NewFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	registry := repoFactory.CreateSessionRegistry()
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
	}

	opts := fanout.Options{
		PingInterval: cfg.Fanout.PingInterval,
		PongTimeout:  cfg.Fanout.PongTimeout,
		WriteTimeout: cfg.Fanout.WriteTimeout,
	}
	if cfg.RateLimiting.Enabled {
		opts.FrameRate = cfg.RateLimiting.FramesPerSecond
		opts.FrameBurst = cfg.RateLimiting.Burst
	}
	server := fanout.NewServer(registry, authService, collector, opts, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	router.GET("/ws", func(c *gin.Context) {
		server.HandleWebSocket(c.Writer, c.Request)
	})
	router.GET("/healthz", func(c *gin.Context) {
		server.HealthCheck(c.Writer, c.Request)
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// development-only token mint; real deployments receive tokens
	// from the surrounding application's auth service
	if cfg.Auth.DevTokenMint {
		router.POST("/token", func(c *gin.Context) {
			var req struct {
				UserID   string `json:"user_id" binding:"required"`
				Username string `json:"username" binding:"required"`
				Role     string `json:"role"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			role := domain.UserRole(req.Role)
			if role == "" {
				role = domain.RoleMember
			}
			token, err := authService.GenerateToken(domain.Identity{
				UserID:   domain.UserID(req.UserID),
				Username: req.Username,
				Role:     role,
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	httpServer := &http.Server{
		Addr:    cfg.Fanout.Address,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infow("starting voicecast fanout", "address", cfg.Fanout.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Fanout.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("server shutdown failed", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("tracing shutdown failed", "error", err)
	}
}
