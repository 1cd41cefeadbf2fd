package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"expense_ingest/internal/channel"
	"expense_ingest/internal/config"
	"expense_ingest/internal/extraction"
	"expense_ingest/internal/handler"
	"expense_ingest/internal/logging"
	"expense_ingest/internal/middleware"
	"expense_ingest/internal/ratelimit"
	"expense_ingest/internal/repository"
	"expense_ingest/internal/service"
	"expense_ingest/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Tokens are issued elsewhere; the lifetime only matters for GenerateToken.
const tokenLifetime = 24 * time.Hour

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connection ---
	dbPool, err := config.ConnectDB(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if migrate {
		if err := config.AutoMigrate(ctx, dbPool, logger); err != nil {
			return err
		}
	}

	// --- Optional cache for the issue cooldown ---
	var cache *redis.Client
	var limiter service.CodeLimiter
	if cfg.RedisURL != "" {
		cache, err = config.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer cache.Close()
		limiter = ratelimit.NewCooldown(cache, cfg.IssueCooldown)
		logger.Info("code issue cooldown enabled", zap.Duration("window", cfg.IssueCooldown))
	}

	// --- Outbound clients ---
	sender := channel.NewClient(channel.Config{
		APIBase:       cfg.WhatsApp.APIBase,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
		Timeout:       cfg.WhatsApp.Timeout,
	})
	extractor, err := newExtractor(ctx, cfg.Extraction)
	if err != nil {
		return err
	}

	// --- Repositories and services ---
	profileRepo := repository.NewProfileRepository(dbPool)
	categoryRepo := repository.NewCategoryRepository(dbPool)
	expenseRepo := repository.NewExpenseRepository(dbPool)

	verificationService := service.NewVerificationService(profileRepo, sender, service.VerificationConfig{
		CodeTTL: cfg.CodeTTL,
		Limiter: limiter,
	}, logger.Named("verification"))
	ingestionService := service.NewIngestionService(profileRepo, categoryRepo, expenseRepo, extractor, sender,
		service.IngestionConfig{
			FallbackCategory:  cfg.FallbackCategory,
			Uncategorized:     cfg.Uncategorized,
			Location:          cfg.Location,
			ExtractionTimeout: cfg.Extraction.Timeout,
		}, logger.Named("ingestion"))

	// --- Router ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger.Named("http")))

	jwtUtil := utils.NewJWTUtil(cfg.JWTSecret, tokenLifetime)
	handler.NewWebhookHandler(ingestionService, cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret, logger.Named("webhook")).
		RegisterWebhookRoutes(router)
	handler.NewVerificationHandler(verificationService, logger.Named("verification")).
		RegisterVerificationRoutes(router.Group("/api/v1", middleware.CORSMiddleware(cfg.CORSOrigin)),
			middleware.JWTAuthMiddleware(jwtUtil), middleware.AuthenticatedMiddleware())
	router.GET("/health", healthHandler(dbPool, cache))

	// --- Start Server ---
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

func newExtractor(ctx context.Context, cfg config.ExtractionConfig) (extraction.Extractor, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return extraction.NewGeminiClient(ctx, extraction.GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return extraction.NewGatewayClient(extraction.GatewayConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	}
}

func healthHandler(db *pgxpool.Pool, cache *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "db": "healthy"}
		code := http.StatusOK
		if err := db.Ping(ctx); err != nil {
			status["status"], status["db"] = "error", "unhealthy"
			code = http.StatusServiceUnavailable
		}
		if cache != nil {
			status["cache"] = "healthy"
			if err := cache.Ping(ctx).Err(); err != nil {
				status["status"], status["cache"] = "error", "unhealthy"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, status)
	}
}
