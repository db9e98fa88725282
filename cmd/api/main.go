package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/cache"
	"github.com/delordemm1/siteauth/internal/config"
	"github.com/delordemm1/siteauth/internal/database"
	"github.com/delordemm1/siteauth/internal/jobs"
	"github.com/delordemm1/siteauth/internal/metrics"
	"github.com/delordemm1/siteauth/internal/modules/user"
	"github.com/delordemm1/siteauth/internal/notification"
	"github.com/delordemm1/siteauth/internal/notification/templates"
	"github.com/delordemm1/siteauth/internal/rate"
	"github.com/delordemm1/siteauth/internal/secretbox"
	"github.com/delordemm1/siteauth/internal/server"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/delordemm1/siteauth/internal/site"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Options for the CLI.
type Options struct {
	Port         int    `help:"Port to listen on (defaults to SERVER_PORT)" short:"p"`
	TemplatesDir string `help:"Load email templates from this directory instead of the embedded set"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		cfg := config.Load()
		if cfg == nil {
			logger.Error("failed to load configuration")
			os.Exit(1)
		}
		logger.Info("configuration loaded successfully", "env", cfg.Server.Env)

		// --- Database & Cache ---
		dbPool := database.NewPostgresPool(cfg.Database.URL)
		if dbPool == nil {
			logger.Error("failed to connect to postgres")
			os.Exit(1)
		}
		logger.Info("successfully connected to postgres database")

		checks := map[string]server.HealthChecker{"postgres": dbPool.Ping}

		var (
			verifyLimiter rate.Limiter
			locker        rate.Locker
		)
		redisClient := cache.NewRedisClient(cfg.Redis.URL)
		if redisClient != nil {
			logger.Info("successfully connected to redis")
			verifyLimiter = rate.NewRedisLimiter(redisClient, "rl:verify:", cfg.RateLimit.VerifyMax, cfg.RateLimit.VerifyWindow)
			locker = rate.NewRedisLocker(redisClient, "lock:")
			checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		} else {
			// single instance only: limits and locks are not shared between replicas
			logger.Warn("redis unavailable, using in-process rate limits and locks")
			verifyLimiter = rate.NewMemoryLimiter("rl:verify:", cfg.RateLimit.VerifyMax, cfg.RateLimit.VerifyWindow)
			locker = rate.NewMemoryLocker("lock:")
		}

		// --- Metrics ---
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)
		m.RegisterPool(reg, dbPool)

		// --- Supporting services ---
		sites := site.NewResolver(site.NewRepository(dbPool), site.FallbackBranding(cfg.Brand), 5*time.Minute, logger)

		engine := templates.NewEngine(templates.Config{Dir: options.TemplatesDir, Reload: options.TemplatesDir != "" && cfg.Server.Env != "production"}, logger)
		sender := notification.NewSMTPEmailSender(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)
		notifier := notification.NewService(logger, engine, sender)

		sessions := session.NewRegistry(session.NewPostgresStore(dbPool), session.Config{
			SlidingTTL:  cfg.Session.SlidingTTL,
			AbsoluteTTL: cfg.Session.AbsoluteTTL,
			Logger:      logger,
		})

		key := cfg.MFA.EncryptionKey
		if key == "" {
			logger.Warn("MFA_ENCRYPTION_KEY not set, deriving the TOTP key from JWT_SECRET")
			key = cfg.JWTSecret
		}
		box, err := secretbox.New(key)
		if err != nil {
			logger.Error("failed to build the TOTP secret box", "error", err)
			os.Exit(1)
		}

		recorder := audit.NewRecorder(audit.NewStore(dbPool), logger, 1000)

		// --- Module Initialization (Bottom-Up) ---

		// User Module
		userRepo := user.NewRepository(dbPool)
		userService := user.NewService(&user.Config{
			Repo:     userRepo,
			Sites:    sites,
			Notifier: notifier,
			Sessions: sessions,
			Limiter:  verifyLimiter,
			Locker:   locker,
			Audit:    recorder,
			Metrics:  m,
			Box:      box,
			Logger:   logger,
			Config:   cfg,
		})

		scheduler := jobs.NewScheduler(cfg.Sweep.Interval, logger,
			jobs.Task{Name: "sweep_stale_signups", Run: userService.SweepStaleSignups, Timeout: time.Minute},
			jobs.Task{Name: "purge_oauth_states", Run: userService.PurgeExpiredOAuthStates, Timeout: 30 * time.Second},
		)

		router := server.New(cfg, logger, userService, m, checks)

		port := options.Port
		if port == 0 {
			port, _ = strconv.Atoi(cfg.Server.Port)
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		hooks.OnStart(func() {
			scheduler.Start(context.Background())
			logger.Info(fmt.Sprintf("Starting server on port %d...", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server failed to start", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown failed", "error", err)
			}
			scheduler.Stop()
			recorder.Close()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			dbPool.Close()
			logger.Info("server stopped")
		})
	})
	cli.Run()
}
