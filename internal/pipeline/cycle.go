// Package pipeline orchestrates one collection cycle: fetch the primary
// station network, fill gaps from the secondary point model via the shared
// grid, persist raw readings, aggregate rolling averages, and compute and
// persist the health index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/klongtoey/airhealth/internal/domain"
	"github.com/klongtoey/airhealth/internal/fetch"
	"github.com/klongtoey/airhealth/internal/observability"
)

// State names one stage of the cycle state machine.
type State string

const (
	StateIdle            State = "IDLE"
	StateFetchPrimary    State = "FETCH_PRIMARY"
	StateFetchSupplement State = "FETCH_SUPPLEMENT"
	StatePersistRaw      State = "PERSIST_RAW"
	StateAggregate       State = "AGGREGATE"
	StateComputeIndex    State = "COMPUTE_INDEX"
	StatePersistIndex    State = "PERSIST_INDEX"
	StateFailed          State = "CYCLE_FAILED"
)

// errQuotaDenied marks a fetch skipped by the quota gate. Quota exhaustion
// is a designed outcome, not a provider failure, and is counted separately.
var errQuotaDenied = errors.New("quota denied")

// PrimarySource is the dense station network fetched per location.
type PrimarySource interface {
	Name() string
	FetchStation(ctx context.Context, loc domain.Location) (domain.PollutantMap, time.Time, error)
}

// SupplementSource is the coarse point model fetched per grid cell.
type SupplementSource interface {
	Name() string
	FetchPoint(ctx context.Context, lat, lon float64) (domain.PollutantMap, time.Time, error)
}

// Store is the persistence the cycle consumes.
type Store interface {
	UpsertReading(ctx context.Context, r domain.RawReading) error
	ReadingsSince(ctx context.Context, locationID string, since time.Time) ([]domain.RawReading, error)
	UpsertHealthIndex(ctx context.Context, rec domain.HealthIndexRecord) error
}

// QuotaGate admits or denies one provider call. Implementations fail closed.
type QuotaGate interface {
	CheckAndReserve(ctx context.Context, provider string) bool
}

// Publisher delivers computed index records downstream. Optional.
type Publisher interface {
	PublishBatch(ctx context.Context, recs []domain.HealthIndexRecord) error
}

// Config holds the tunables of a collection cycle.
type Config struct {
	Locations     []domain.Location
	Window        time.Duration // rolling aggregation window
	Interval      time.Duration // expected reading cadence inside the window
	GridSize      int           // supplement grid is GridSize×GridSize
	BatchWidth    int           // concurrent fetches per batch
	BatchPause    time.Duration // delay between batches; zero in tests
	SupplementCap int           // per-cycle ceiling on secondary calls
	Policy        domain.IndexPolicy
}

// Result is the structured outcome of one cycle. A degraded cycle still
// carries whatever succeeded; a failed one names what broke.
type Result struct {
	CycleID           string        `json:"cycle_id"`
	Hour              time.Time     `json:"hour"`
	State             State         `json:"state"`
	Degraded          bool          `json:"degraded"`
	PrimaryFetched    int           `json:"primary_fetched"`
	PrimaryFailed     int           `json:"primary_failed"`
	SupplementCells   int           `json:"supplement_cells"`
	SupplementFailed  int           `json:"supplement_failed"`
	QuotaDenied       int           `json:"quota_denied"`
	ReadingsPersisted int           `json:"readings_persisted"`
	RecordsComputed   int           `json:"records_computed"`
	Errors            []string      `json:"errors,omitempty"`
	Elapsed           time.Duration `json:"elapsed"`
}

// Cycle wires the pipeline stages together. One Cycle is built at startup
// and Run once per external trigger; overlapping runs are safe because all
// writes are upserts and the quota increment is atomic in the store.
type Cycle struct {
	store     Store
	primary   PrimarySource
	secondary SupplementSource
	quota     QuotaGate
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	cfg       Config
	ready     atomic.Bool
}

// New creates a Cycle. publisher may be nil to disable downstream delivery.
func New(store Store, primary PrimarySource, secondary SupplementSource, quota QuotaGate, publisher Publisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Cycle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cycle{
		store:     store,
		primary:   primary,
		secondary: secondary,
		quota:     quota,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// CheckReadiness returns nil once at least one cycle has completed.
func (c *Cycle) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("no collection cycle has completed yet")
	}
	return nil
}

// Run executes one full collection cycle. Provider-level failures are
// absorbed into the result; only a configuration error or an unreachable
// store fails the cycle. Readings fetched before a cancellation are still
// persisted, since each is independently valid.
func (c *Cycle) Run(ctx context.Context) (Result, error) {
	start := c.clock.Now()
	now := start.UTC()
	result := Result{
		CycleID: uuid.NewString(),
		Hour:    now.Truncate(time.Hour),
		State:   StateIdle,
	}

	if len(c.cfg.Locations) == 0 {
		return c.fail(result, start, errors.New("no locations configured"))
	}

	c.logger.Info("cycle started", "cycle_id", result.CycleID, "hour", result.Hour, "locations", len(c.cfg.Locations))
	c.metrics.CyclesStarted.Inc()

	// FETCH_PRIMARY: one station fetch per location, quota-gated, batched.
	result.State = StateFetchPrimary
	primaryReadings := c.fetchPrimary(ctx, now, &result)

	// FETCH_SUPPLEMENT: fill gaps from the point model, one fetch per
	// distinct grid cell.
	result.State = StateFetchSupplement
	supplementReadings := c.fetchSupplement(ctx, primaryReadings, now, &result)

	// PERSIST_RAW: write everything fetched so far, even if the trigger's
	// deadline already expired mid-fetch.
	result.State = StatePersistRaw
	persistCtx := context.WithoutCancel(ctx)
	var persistFailures int
	for _, r := range primaryReadings {
		c.persistReading(persistCtx, r, &result, &persistFailures)
	}
	for _, r := range supplementReadings {
		c.persistReading(persistCtx, r, &result, &persistFailures)
	}
	totalReadings := len(primaryReadings) + len(supplementReadings)
	if totalReadings > 0 && persistFailures == totalReadings {
		return c.fail(result, start, errors.New("store unreachable: no readings persisted"))
	}

	// AGGREGATE + COMPUTE_INDEX: rolling averages and index per location.
	result.State = StateAggregate
	records := make([]domain.HealthIndexRecord, 0, len(c.cfg.Locations))
	for _, loc := range c.cfg.Locations {
		readings, err := c.store.ReadingsSince(persistCtx, loc.ID, now.Add(-c.cfg.Window))
		if err != nil {
			result.Degraded = true
			result.Errors = append(result.Errors, fmt.Sprintf("aggregate %s: %v", loc.ID, err))
			continue
		}
		avgs := domain.ComputeRollingAverages(loc.ID, readings, c.cfg.Window, c.cfg.Interval, now)

		result.State = StateComputeIndex
		records = append(records, domain.ComputeHealthIndex(c.cfg.Policy, avgs, result.Hour))
	}

	// PERSIST_INDEX: upsert keyed by (location, hour) so re-triggering the
	// same hour replaces rather than duplicates.
	result.State = StatePersistIndex
	var indexFailures int
	for _, rec := range records {
		if err := c.store.UpsertHealthIndex(persistCtx, rec); err != nil {
			indexFailures++
			result.Degraded = true
			result.Errors = append(result.Errors, fmt.Sprintf("persist index %s: %v", rec.LocationID, err))
			continue
		}
		result.RecordsComputed++
		c.metrics.IndexRecordsComputed.Inc()
	}
	if len(records) > 0 && indexFailures == len(records) && result.ReadingsPersisted == 0 {
		return c.fail(result, start, errors.New("store unreachable: no index records persisted"))
	}

	c.publish(persistCtx, records, &result)

	result.State = StateIdle
	result.Elapsed = c.clock.Since(start)
	c.metrics.CycleDuration.Observe(result.Elapsed.Seconds())
	c.ready.Store(true)
	c.logger.Info("cycle completed",
		"cycle_id", result.CycleID,
		"degraded", result.Degraded,
		"primary_fetched", result.PrimaryFetched,
		"primary_failed", result.PrimaryFailed,
		"supplement_cells", result.SupplementCells,
		"quota_denied", result.QuotaDenied,
		"readings_persisted", result.ReadingsPersisted,
		"records_computed", result.RecordsComputed,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// fetchPrimary runs the batched per-location station fetch and returns the
// normalized readings that succeeded, keyed by location id in the result
// slice order.
func (c *Cycle) fetchPrimary(ctx context.Context, now time.Time, result *Result) []domain.RawReading {
	type stationValues struct {
		values     domain.PollutantMap
		observedAt time.Time
	}

	batcher := fetch.Batcher{
		Width:  c.cfg.BatchWidth,
		Pause:  c.cfg.BatchPause,
		Clock:  c.clock,
		Logger: c.logger,
	}
	results, stats := fetch.Run(ctx, batcher, c.cfg.Locations, func(ctx context.Context, loc domain.Location) (stationValues, error) {
		if !c.quota.CheckAndReserve(ctx, c.primary.Name()) {
			return stationValues{}, errQuotaDenied
		}
		values, observedAt, err := c.primary.FetchStation(ctx, loc)
		if err != nil {
			return stationValues{}, err
		}
		return stationValues{values: values, observedAt: observedAt}, nil
	})

	readings := make([]domain.RawReading, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, errQuotaDenied) {
				result.QuotaDenied++
				c.metrics.QuotaDenials.WithLabelValues(c.primary.Name()).Inc()
			} else {
				result.PrimaryFailed++
				c.metrics.FetchFailures.WithLabelValues(c.primary.Name()).Inc()
			}
			continue
		}
		observedAt := r.Value.observedAt
		if observedAt.IsZero() {
			observedAt = now
		}
		readings = append(readings, domain.RawReading{
			LocationID: r.Target.ID,
			Provider:   c.primary.Name(),
			ObservedAt: observedAt,
			Values:     r.Value.values,
		})
		result.PrimaryFetched++
	}
	if stats.Failed > 0 {
		result.Degraded = true
	}
	return readings
}

// fetchSupplement plans the grid, reserves quota per distinct cell, fetches
// the reserved cells, and broadcasts each cell's values to its locations.
// A failed cell leaves its locations without a supplement this cycle and
// nothing more.
func (c *Cycle) fetchSupplement(ctx context.Context, primaryReadings []domain.RawReading, now time.Time, result *Result) []domain.RawReading {
	if c.secondary == nil {
		return nil
	}
	latest := make(map[string]domain.RawReading, len(primaryReadings))
	for _, r := range primaryReadings {
		latest[r.LocationID] = r
	}
	plan := planSupplement(c.cfg.Locations, c.cfg.GridSize, latest, c.cfg.Window, now)
	if len(plan.cells) == 0 {
		return nil
	}

	// Reserve budget per distinct cell, up to the per-cycle cap. The call
	// count is bounded by min(cells, remaining quota, cap), never by the
	// number of needy locations.
	reserved := make([]domain.GridCell, 0, len(plan.cells))
	for _, cell := range plan.cells {
		if c.cfg.SupplementCap > 0 && len(reserved) >= c.cfg.SupplementCap {
			break
		}
		if !c.quota.CheckAndReserve(ctx, c.secondary.Name()) {
			result.QuotaDenied++
			c.metrics.QuotaDenials.WithLabelValues(c.secondary.Name()).Inc()
			continue
		}
		reserved = append(reserved, cell)
	}
	if len(reserved) == 0 {
		c.logger.Info("no supplement budget this cycle", "cells_needed", len(plan.cells))
		return nil
	}

	type cellValues struct {
		values     domain.PollutantMap
		observedAt time.Time
	}
	batcher := fetch.Batcher{
		Width:  c.cfg.BatchWidth,
		Pause:  c.cfg.BatchPause,
		Clock:  c.clock,
		Logger: c.logger,
	}
	results, _ := fetch.Run(ctx, batcher, reserved, func(ctx context.Context, cell domain.GridCell) (cellValues, error) {
		values, observedAt, err := c.secondary.FetchPoint(ctx, cell.Lat, cell.Lon)
		if err != nil {
			return cellValues{}, err
		}
		return cellValues{values: values, observedAt: observedAt}, nil
	})

	var readings []domain.RawReading
	for _, r := range results {
		if r.Err != nil {
			result.SupplementFailed++
			result.Degraded = true
			c.metrics.FetchFailures.WithLabelValues(c.secondary.Name()).Inc()
			continue
		}
		result.SupplementCells++
		c.metrics.SupplementCellsFetched.Inc()
		observedAt := r.Value.observedAt
		if observedAt.IsZero() {
			observedAt = now
		}
		readings = append(readings, plan.broadcast(r.Target, r.Value.values, c.secondary.Name(), observedAt)...)
	}
	return readings
}

func (c *Cycle) persistReading(ctx context.Context, r domain.RawReading, result *Result, failures *int) {
	if len(r.Values) == 0 {
		return
	}
	if err := c.store.UpsertReading(ctx, r); err != nil {
		*failures++
		result.Degraded = true
		result.Errors = append(result.Errors, fmt.Sprintf("persist reading %s/%s: %v", r.LocationID, r.Provider, err))
		return
	}
	result.ReadingsPersisted++
	c.metrics.ReadingsPersisted.Inc()
}

func (c *Cycle) publish(ctx context.Context, records []domain.HealthIndexRecord, result *Result) {
	if c.publisher == nil || len(records) == 0 {
		return
	}
	if err := c.publisher.PublishBatch(ctx, records); err != nil {
		result.Degraded = true
		result.Errors = append(result.Errors, fmt.Sprintf("publish index records: %v", err))
		c.logger.Error("publish index records failed", "error", err)
		return
	}
	c.metrics.RecordsPublished.Add(float64(len(records)))
}

func (c *Cycle) fail(result Result, start time.Time, err error) (Result, error) {
	result.State = StateFailed
	result.Errors = append(result.Errors, err.Error())
	result.Elapsed = c.clock.Since(start)
	c.metrics.CycleFailures.Inc()
	c.logger.Error("cycle failed", "cycle_id", result.CycleID, "error", err)
	return result, err
}
