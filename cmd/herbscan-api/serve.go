package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/herbscan-api/internal/auth"
	"github.com/jmylchreest/herbscan-api/internal/config"
	"github.com/jmylchreest/herbscan-api/internal/http/handlers"
	"github.com/jmylchreest/herbscan-api/internal/http/mw"
	"github.com/jmylchreest/herbscan-api/internal/http/routes"
	"github.com/jmylchreest/herbscan-api/internal/service"
	"github.com/jmylchreest/herbscan-api/internal/shutdown"
	"github.com/jmylchreest/herbscan-api/internal/version"
)

func runServe(ctx context.Context, logger *slog.Logger) error {
	logger.Info("starting herbscan-api", version.Get().LogAttrs()...)

	cfg, st, err := openMigratedStore(ctx, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer st.close()
	logger.Info("store ready", "driver", st.driver)

	services, err := service.NewServices(ctx, cfg, st.repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("failed to close services", "error", err)
		}
	}()

	// The sweep outlives request contexts but stops with the process.
	if err := services.ProfileSync.Start(ctx, cfg.ProfileSyncSchedule); err != nil {
		return err
	}

	verifier := auth.NewVerifier(auth.VerifierConfig{
		Secret:   cfg.AuthJWTSecret,
		Issuer:   cfg.AuthJWTIssuer,
		Audience: cfg.AuthJWTAudience,
	})

	idle := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz", "/metrics"},
		Busy:         services.ProfileSync.Running,
		Logger:       logger,
	})

	router, err := newRouter(cfg, services, st, verifier, idle, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	idle.Start()
	defer idle.Stop()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	case <-idle.Done():
		logger.Info("shutting down idle server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newRouter(cfg *config.Config, services *service.Services, st *store, verifier *auth.Verifier, idle *shutdown.IdleMonitor, logger *slog.Logger) (http.Handler, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(idle.Middleware)
	router.Use(mw.APIVersion())
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          30 * time.Second,
		Extended:         cfg.IdentifyTimeout + 10*time.Second,
		ExtendedPatterns: []string{"/identify"},
	}))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", "X-API-Version"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	// Large enough for a base64 image at the configured limit.
	router.Use(middleware.RequestSize(cfg.MaxImageBytes*4/3 + 1024*1024))
	router.Use(mw.RateLimitByIP(100))
	router.Use(middleware.Throttle(100))

	router.Handle("/metrics", promhttp.Handler())

	// Typed routes. Bearer auth is applied per operation from its security requirement.
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, verifier))
	routes.Register(api, &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(st.repos.Ping).Readyz,
		Account:     handlers.NewAccountHandlers(services.Entitlement, services.Quota, services.Identify),
	})
	routes.DocumentRawEndpoints(api)

	// Webhooks verify their own signatures and sit outside user auth.
	router.Post("/api/v1/webhooks/stripe", handlers.NewStripeWebhookHandler(services.Reconciler, logger).HandleWebhook)

	if cfg.AuthWebhookSecret != "" {
		authWebhook, err := handlers.NewAuthWebhookHandler(cfg.AuthWebhookSecret, services.Profile, logger)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTH_WEBHOOK_SECRET: %w", err)
		}
		router.Post("/api/v1/webhooks/auth", authWebhook.HandleWebhook)
		logger.Info("auth webhook endpoint enabled")
	} else {
		logger.Warn("AUTH_WEBHOOK_SECRET not set - profiles are created on first billing event only")
	}

	// Identification: authenticated, per-user rate limited, then quota gated.
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(verifier))
		r.Use(mw.RateLimitByUser(cfg.IdentifyRPM))
		r.Use(mw.ScanQuota(services.Quota))
		r.Post("/api/v1/identify", handlers.NewIdentifyHandler(services.Identify, logger).HandleIdentify)
	})

	return router, nil
}
