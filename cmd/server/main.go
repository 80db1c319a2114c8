package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/handler"
	"github.com/makkenzo/username-check-api/internal/handler/middleware"
	"github.com/makkenzo/username-check-api/internal/metrics"
	"github.com/makkenzo/username-check-api/internal/service"
	"github.com/makkenzo/username-check-api/internal/storage/postgres"
	"github.com/makkenzo/username-check-api/internal/storage/redis"
	"github.com/makkenzo/username-check-api/internal/upstream/discord"
	"github.com/makkenzo/username-check-api/internal/util"
	"github.com/makkenzo/username-check-api/internal/worker"
	"github.com/makkenzo/username-check-api/pkg/logger"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()
	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokenKey, err := cfg.Secrets.TokenKeyBytes()
	if err != nil {
		sugarLogger.Fatalf("A valid secrets.tokenKey is required: %v", err)
	}
	secretBox, err := util.NewSecretBox(tokenKey)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize token sealing: %v", err)
	}

	dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbPool.Close()

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Init(registry); err != nil {
		sugarLogger.Fatalf("Failed to register metrics: %v", err)
	}

	apiKeyRepo := postgres.NewAPIKeyRepository(dbPool, appLogger)
	banRepo := postgres.NewBanRepository(dbPool, appLogger)
	planRepo := redis.NewCachedPlanRepository(
		postgres.NewSubscriptionRepository(dbPool, appLogger),
		redisClient,
		cfg.Gateway.PlanCacheTTL,
		appLogger,
	)
	tokenRepo := postgres.NewCheckTokenRepository(dbPool, secretBox, appLogger)
	usageRepo := postgres.NewUsageRepository(dbPool, appLogger)
	auditRepo := postgres.NewAuditLogRepository(dbPool, appLogger)

	discordClient := discord.NewClient(
		discord.WithBaseURL(cfg.Upstream.BaseURL),
		discord.WithHTTPClient(&http.Client{
			Transport: &discord.LoggingTransport{Logger: appLogger.Named("DiscordClient")},
		}),
		discord.WithTimeout(cfg.Upstream.Timeout),
	)

	authService, err := service.NewAuthService(&cfg.JWT, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize auth service: %v", err)
	}
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, cfg.Gateway.DefaultRateLimitSeconds, appLogger)
	quotaPolicy := service.NewQuotaPolicy(planRepo, cfg.Gateway, appLogger)
	auditSink := service.NewAsyncAuditSink(auditRepo, appLogger)
	gatewayService := service.NewGatewayService(service.GatewayDeps{
		Auth:    apiKeyService,
		Keys:    apiKeyRepo,
		Bans:    banRepo,
		Quota:   quotaPolicy,
		Tokens:  tokenRepo,
		Usage:   usageRepo,
		Audit:   auditSink,
		Checker: discordClient,
	}, cfg.Gateway, appLogger)
	accountService := service.NewAccountService(apiKeyRepo, tokenRepo, usageRepo, auditRepo, quotaPolicy, appLogger)
	checkTokenService := service.NewCheckTokenService(tokenRepo, appLogger)

	handlers := handler.Handlers{
		Health:  handler.NewHealthHandler(dbPool, redisClient, appLogger),
		Check:   handler.NewCheckHandler(gatewayService, appLogger),
		Account: handler.NewAccountHandler(accountService, appLogger),
		APIKeys: handler.NewAPIKeyHandler(apiKeyService, appLogger),
		Tokens:  handler.NewCheckTokenHandler(checkTokenService, appLogger),
	}

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(middleware.RecoveryMiddleware(appLogger))
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-API-Key",
			"X-Token-Name",
		},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(middleware.ErrorHandlerMiddleware(appLogger))

	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	handler.RegisterRoutes(router, handlers,
		middleware.APIKeyAuthMiddleware(apiKeyService, appLogger),
		middleware.AuthMiddleware(authService, appLogger),
	)

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(groupCtx, cfg, apiKeyRepo, appLogger); err != nil {
			return fmt.Errorf("asynq worker error: %w", err)
		}
		sugarLogger.Info("Asynq workers finished gracefully.")
		return nil
	})

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Flushing pending audit entries...")
	auditSink.Wait()

	switch {
	case waitErr == nil, errors.Is(waitErr, context.Canceled):
		sugarLogger.Info("Application shutdown successfully.")
	default:
		sugarLogger.Errorf("Application shutdown finished with error: %v", waitErr)
	}
}
