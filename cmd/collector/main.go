// Command collector runs the air quality collection service: hourly
// collection cycles against both providers, the SQLite store, optional
// Kafka delivery of computed index records, and the HTTP read API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/klongtoey/airhealth/internal/adapter/http"
	kafkaadapter "github.com/klongtoey/airhealth/internal/adapter/kafka"
	"github.com/klongtoey/airhealth/internal/adapter/openweather"
	"github.com/klongtoey/airhealth/internal/adapter/sqlite"
	"github.com/klongtoey/airhealth/internal/adapter/waqi"
	"github.com/klongtoey/airhealth/internal/config"
	"github.com/klongtoey/airhealth/internal/domain"
	"github.com/klongtoey/airhealth/internal/observability"
	"github.com/klongtoey/airhealth/internal/pipeline"
	"github.com/klongtoey/airhealth/internal/quota"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	primary := waqi.NewClient(cfg.WAQIToken, cfg.ProviderTimeout, logger)

	var secondary pipeline.SupplementSource
	if cfg.SupplementEnabled {
		secondary = openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.ProviderTimeout, logger)
		logger.Info("supplement provider enabled", "grid_size", cfg.GridSize, "cap", cfg.SupplementCap)
	} else {
		logger.Info("supplement provider disabled")
	}

	var publisher pipeline.Publisher
	var publisherCloser interface{ Close() error }
	if cfg.KafkaEnabled {
		kp := kafkaadapter.NewPublisher(cfg, logger)
		publisher = kp
		publisherCloser = kp
		logger.Info("kafka delivery enabled", "topic", cfg.KafkaSinkTopic)
	}

	locations := domain.Catalogue()
	quotas := quota.NewManager(store, cfg.QuotaCeiling, clock, logger)
	cycle := pipeline.New(store, primary, secondary, quotas, publisher, clock, logger, metrics, pipeline.Config{
		Locations:     locations,
		Window:        cfg.Window,
		Interval:      cfg.Interval,
		GridSize:      cfg.GridSize,
		BatchWidth:    cfg.BatchWidth,
		BatchPause:    cfg.BatchPause,
		SupplementCap: cfg.SupplementCap,
		Policy:        cfg.Policy(),
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, locations, store, quotas, cycle, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Schedule collection cycles and retention pruning.
	metrics.CollectorRunning.Set(1)
	defer metrics.CollectorRunning.Set(0)

	scheduler := gocron.NewScheduler(clock.Now().Location())
	_, err = scheduler.Every(cfg.CycleInterval).StartImmediately().Do(func() {
		if _, err := cycle.Run(ctx); err != nil {
			logger.Error("collection cycle failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("failed to schedule cycles", "error", err)
		os.Exit(1)
	}
	_, err = scheduler.Every(24).Hours().Do(func() {
		cutoff := clock.Now().UTC().Add(-cfg.ReadingRetention)
		quotaDay := quota.Day(clock.Now().UTC().AddDate(0, 0, -cfg.QuotaRetentionDays))
		removed, err := store.Prune(ctx, cutoff, quotaDay)
		if err != nil {
			logger.Error("retention pruning failed", "error", err)
			return
		}
		logger.Info("retention pruning done", "readings_removed", removed)
	})
	if err != nil {
		logger.Error("failed to schedule pruning", "error", err)
		os.Exit(1)
	}
	scheduler.StartAsync()

	<-ctx.Done()
	logger.Info("shutting down")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisherCloser != nil {
		if err := publisherCloser.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
