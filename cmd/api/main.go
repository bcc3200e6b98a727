package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/background"
	"github.com/BradenHooton/warden/internal/config"
	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/handlers"
	middlewareCustom "github.com/BradenHooton/warden/internal/middleware"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
	"github.com/BradenHooton/warden/internal/routes"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	prometheus.MustRegister(database.NewPoolCollector(db.Snapshot))

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Repositories
	userRepo := repositories.NewUserRepository(db.Pool)
	sessionRepo := repositories.NewSessionRepository(db.Pool)
	verificationRepo := repositories.NewVerificationRepository(db.Pool)

	auditLogger := pkglogger.NewAuditLogger(logger)
	storeTimeout := cfg.Auth.StoreTimeout

	tokenManager := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTokenExpiry,
		RefreshTTL:    cfg.Auth.RefreshTokenExpiry,
		Issuer:        cfg.Auth.Issuer,
	})

	mailCtx, mailCancel := context.WithTimeout(context.Background(), 10*time.Second)
	mailer, err := services.NewSESMailer(mailCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	mailCancel()
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	mfaLimiter, redisClient, err := newMFALimiter(cfg, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Services
	sessionService := services.NewSessionService(sessionRepo, services.SessionConfig{
		TTL:          cfg.Auth.SessionTTL,
		StoreTimeout: storeTimeout,
	}, logger, auditLogger)
	verificationService := services.NewVerificationService(verificationRepo, storeTimeout, logger)
	rateLimitService := services.NewRateLimitService(verificationRepo, storeTimeout, logger)

	authService := services.NewAuthService(
		userRepo,
		sessionService,
		verificationService,
		rateLimitService,
		tokenManager,
		mailer,
		services.AuthConfig{
			AppOrigin:            cfg.Email.AppOrigin,
			EmailVerificationTTL: cfg.Auth.EmailVerificationTTL,
			ResetPolicy: services.Policy{
				Type:        models.VerificationPasswordReset,
				Window:      cfg.Reset.Window,
				MaxAttempts: cfg.Reset.MaxAttempts,
			},
			ResetCodeTTL:          cfg.Reset.CodeTTL,
			StoreTimeout:          storeTimeout,
			MailerTimeout:         cfg.Email.SendTimeout,
			EnforcePasswordPolicy: cfg.Auth.PasswordPolicy,
		},
		logger,
		auditLogger,
	)

	mfaService := services.NewMFAService(
		userRepo,
		sessionService,
		tokenManager,
		auth.NewTOTPManager(cfg.MFA.Issuer),
		auth.NewQRCodeRenderer(256),
		mfaLimiter,
		services.MFAConfig{StoreTimeout: storeTimeout},
		logger,
		auditLogger,
	)

	// Handlers
	cookies := auth.NewCookieConfig(cfg.Server.CookieDomain, cfg.Server.CookieSecure, cfg.Server.BasePath)
	deps := routes.Dependencies{
		Auth:          handlers.NewAuthHandler(authService, cookies),
		MFA:           handlers.NewMFAHandler(mfaService, cookies),
		Sessions:      handlers.NewSessionHandler(sessionService),
		TokenManager:  tokenManager,
		AuthRateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AuthRequestLimit},
	}

	cleanupManager := background.NewCleanupManager(map[string]background.Purger{
		"sessions":              sessionService,
		"verification_requests": verificationService,
	}, logger, cfg.Auth.CleanupInterval)

	corsConfig := middlewareCustom.NewCORSConfig(cfg.Email.AppOrigin)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.PrometheusMetrics)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.OriginCheck(corsConfig, logger))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	if cfg.Server.BasePath == "" {
		routes.RegisterRoutes(router, deps)
	} else {
		router.Route(cfg.Server.BasePath, func(r chi.Router) {
			routes.RegisterRoutes(r, deps)
		})
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("base_path", cfg.Server.BasePath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newMFALimiter connects to Redis when REDIS_ADDR is set. Without it the
// MFA lockout is disabled and the returned limiter is a nil interface.
func newMFALimiter(cfg *config.Config, logger *slog.Logger) (services.AttemptLimiter, *redis.Client, error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR not set, MFA attempt lockout disabled")
		return nil, nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}

	logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	return services.NewRedisAttemptLimiter(client, "mfa:", cfg.MFA.MaxAttempts, cfg.MFA.LockoutWindow), client, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
