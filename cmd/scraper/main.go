package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/config"
	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/martinhill/windburglr-sub000/internal/observability"
	"github.com/martinhill/windburglr-sub000/internal/scraper"
	"github.com/martinhill/windburglr-sub000/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger("scraper")
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
	if len(cfg.Stations) == 0 {
		logger.Fatal("no stations configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var output scraper.OutputHandler
	var status scraper.StatusHandler
	var st *store.Store

	switch cfg.OutputMode {
	case "postgres":
		st, err = store.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("store", zap.Error(err))
		}
		defer st.Close()

		for _, station := range cfg.Stations {
			if err := st.EnsureStation(ctx, station.Name, station.Timezone); err != nil {
				logger.Fatal("ensure station",
					zap.String("station", station.Name), zap.Error(err))
			}
		}
		output = st.InsertObservation
		status = st.UpdateScraperStatus
	case "stdout":
		output = writeStdout
		status = func(ctx context.Context, station, status, errorMessage string) error {
			return nil
		}
	}

	tracker := scraper.NewFreshnessTracker()
	httpClient := &http.Client{}

	collectors := make([]*scraper.Collector, 0, len(cfg.Stations))
	for _, station := range cfg.Stations {
		loc := time.UTC
		if station.Timezone != "" {
			loc, err = time.LoadLocation(station.Timezone)
			if err != nil {
				logger.Fatal("station timezone",
					zap.String("station", station.Name), zap.Error(err))
			}
		}

		breaker := scraper.NewFetchBreaker(station.Name,
			uint32(cfg.BreakerMaxFailures), cfg.BreakerCooldown)

		collectors = append(collectors, scraper.NewCollector(scraper.CollectorConfig{
			Station:      station.Name,
			StaleTimeout: station.StaleDataTimeout,
			Fetch:        scraper.NewHTTPFetcher(httpClient, station.URL, station.Headers, station.Timeout, breaker),
			Parse:        scraper.NewJSONParser(station.Name, loc, station.TimeFormat),
			Output:       output,
			Status:       status,
			Tracker:      tracker,
			Retry:        scraper.RetryPolicy{MaxRetries: cfg.MaxRetries, Delay: cfg.RetryDelay},
		}, logger))
	}

	logger.Info("scraper starting",
		zap.Int("stations", len(collectors)),
		zap.Duration("refresh_rate", cfg.RefreshRate),
		zap.String("output_mode", cfg.OutputMode))

	sched := scraper.NewScheduler(collectors, cfg.RefreshRate, logger)
	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler", zap.Error(err))
	}

	// Best effort: record a clean stop for each station so they don't
	// read as failed after shutdown.
	if st != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, c := range collectors {
			if err := st.UpdateScraperStatus(stopCtx, c.Station(), models.StatusStopped, ""); err != nil {
				logger.Warn("stop status write failed",
					zap.String("station", c.Station()), zap.Error(err))
			}
		}
	}
	logger.Info("shutdown complete")
}

// writeStdout prints observations as JSON lines for ad hoc runs without
// a database.
func writeStdout(ctx context.Context, obs models.Observation) error {
	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"station":   obs.Station,
		"direction": obs.Direction,
		"speed_kts": obs.Speed,
		"gust_kts":  obs.Gust,
		"timestamp": obs.Timestamp.UTC().Format(time.RFC3339),
	})
}
