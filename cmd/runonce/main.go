// Command runonce executes exactly one collection cycle and exits, for
// external schedulers (cron, serverless triggers) that own the cadence.
// Re-running the same hour is safe: index records upsert on (location, hour).
//
// With -discover it instead lists the primary network's live stations
// inside the catalogue bounding box, as a coverage check.
//
// Usage:
//
//	go run ./cmd/runonce [-timeout 5m] [-discover]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

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
	timeout := flag.Duration("timeout", 5*time.Minute, "overall cycle deadline")
	discover := flag.Bool("discover", false, "list live stations in the coverage bounding box and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *discover {
		if err := runDiscover(ctx, cfg, logger); err != nil {
			logger.Error("discover failed", "error", err)
			os.Exit(1)
		}
		return
	}

	result, runErr := runCycle(ctx, cfg, logger)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if runErr != nil {
		os.Exit(1)
	}
	if result.Degraded {
		os.Exit(2)
	}
}

func runCycle(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Result, error) {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return pipeline.Result{State: pipeline.StateFailed}, err
	}
	defer store.Close()

	primary := waqi.NewClient(cfg.WAQIToken, cfg.ProviderTimeout, logger)
	var secondary pipeline.SupplementSource
	if cfg.SupplementEnabled {
		secondary = openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.ProviderTimeout, logger)
	}

	quotas := quota.NewManager(store, cfg.QuotaCeiling, clock, logger)
	cycle := pipeline.New(store, primary, secondary, quotas, nil, clock, logger, metrics, pipeline.Config{
		Locations:     domain.Catalogue(),
		Window:        cfg.Window,
		Interval:      cfg.Interval,
		GridSize:      cfg.GridSize,
		BatchWidth:    cfg.BatchWidth,
		BatchPause:    cfg.BatchPause,
		SupplementCap: cfg.SupplementCap,
		Policy:        cfg.Policy(),
	})
	return cycle.Run(ctx)
}

func runDiscover(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	minLat, minLon := math.Inf(1), math.Inf(1)
	maxLat, maxLon := math.Inf(-1), math.Inf(-1)
	for _, loc := range domain.Catalogue() {
		minLat = math.Min(minLat, loc.Lat)
		maxLat = math.Max(maxLat, loc.Lat)
		minLon = math.Min(minLon, loc.Lon)
		maxLon = math.Max(maxLon, loc.Lon)
	}

	client := waqi.NewClient(cfg.WAQIToken, cfg.ProviderTimeout, logger)
	stations, err := client.FetchBounds(ctx, minLat, minLon, maxLat, maxLon)
	if err != nil {
		return err
	}

	fmt.Printf("%d stations in (%.4f,%.4f)-(%.4f,%.4f):\n", len(stations), minLat, minLon, maxLat, maxLon)
	for _, st := range stations {
		aqi := "-"
		if st.OK {
			aqi = fmt.Sprintf("%.0f", st.AQI)
		}
		fmt.Printf("  %7d  %-40s  (%.4f, %.4f)  aqi=%s\n", st.UID, st.Name, st.Lat, st.Lon, aqi)
	}
	return nil
}
