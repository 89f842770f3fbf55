package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/martinhill/windburglr-sub000/internal/bridge"
	"github.com/martinhill/windburglr-sub000/internal/cache"
	"github.com/martinhill/windburglr-sub000/internal/config"
	"github.com/martinhill/windburglr-sub000/internal/httpapi"
	"github.com/martinhill/windburglr-sub000/internal/hub"
	"github.com/martinhill/windburglr-sub000/internal/observability"
	"github.com/martinhill/windburglr-sub000/internal/service"
	"github.com/martinhill/windburglr-sub000/internal/store"
	"github.com/martinhill/windburglr-sub000/internal/suspend"
	"github.com/martinhill/windburglr-sub000/internal/watchdog"
)

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger("server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer st.Close()

	windCache := cache.New(cfg.CacheRetention)
	observability.RegisterCacheGauges(windCache)

	wsHub := hub.New(logger)

	wd := watchdog.New(cfg.StalenessThreshold, logger)
	wd.SetSink(wsHub)
	if statuses, err := st.ScraperStatuses(ctx); err != nil {
		logger.Warn("initial scraper status load failed", zap.Error(err))
	} else {
		wd.Load(statuses)
	}

	listener := store.NewPgListener(cfg.DatabaseURL)
	notifBridge := bridge.New(listener, windCache, wsHub, wd, bridge.Config{
		MonitorInterval:      cfg.MonitorInterval,
		ReconnectBase:        cfg.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.ReconnectMaxAttempts,
	}, logger)
	if err := notifBridge.Start(ctx); err != nil {
		logger.Fatal("notification listener", zap.Error(err))
	}
	go func() {
		if err := notifBridge.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("notification bridge stopped", zap.Error(err))
		}
	}()

	// Host sleep leaves the listener connection silently dead and the
	// cache stale; cycle both on resume.
	detector := suspend.NewDetector(cfg.SuspendCheckInterval, cfg.SuspendThreshold, logger)
	detector.OnResume(func(gap time.Duration) {
		windCache.MarkAllStale()
		notifBridge.RequestReconnect()
	})
	go detector.Run(ctx)

	windService := service.NewWindService(windCache, st, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	handler := httpapi.NewHandler(windService, wd, st, notifBridge, wsHub,
		windCache, cfg.DefaultStation, logger)
	wsHandler := httpapi.NewWSHandler(wsHub, windService, cfg.WSIdleTimeout, logger)

	router := mux.NewRouter()
	router.Use(httpapi.CorrelationIDMiddleware(logger))
	router.Use(httpapi.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/ws/{station}", wsHandler.ServeWS)
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(httpapi.RateLimitMiddleware(limiter))
	apiRouter.HandleFunc("/wind", handler.GetWind).Methods("GET")
	apiRouter.HandleFunc("/scraper-status", handler.GetScraperStatus).Methods("GET")
	apiRouter.HandleFunc("/scraper-health", handler.GetScraperHealth).Methods("GET")

	// No WriteTimeout: websocket connections outlive any fixed window.
	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
