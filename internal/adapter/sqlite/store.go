// Package sqlite persists readings, health index records, and quota
// counters in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/klongtoey/airhealth/internal/domain"
)

// Store wraps the SQLite handle. It implements the pipeline's persistence
// interface and quota.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. WAL mode lets the collector write while the HTTP read path queries.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			location_id TEXT NOT NULL,
			provider    TEXT NOT NULL,
			observed_at INTEGER NOT NULL,
			pm25 REAL, pm10 REAL, o3 REAL, no2 REAL, so2 REAL, co REAL,
			PRIMARY KEY (location_id, provider, observed_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_location_time
			ON readings (location_id, observed_at)`,
		`CREATE TABLE IF NOT EXISTS health_index (
			location_id TEXT NOT NULL,
			hour        INTEGER NOT NULL,
			value       REAL NOT NULL,
			category    TEXT NOT NULL,
			quality     TEXT NOT NULL,
			policy      TEXT NOT NULL,
			pm25_avg REAL, pm10_avg REAL, o3_avg REAL, no2_avg REAL,
			computed_at INTEGER NOT NULL,
			PRIMARY KEY (location_id, hour)
		)`,
		`CREATE TABLE IF NOT EXISTS provider_quota (
			provider TEXT NOT NULL,
			day      TEXT NOT NULL,
			used     INTEGER NOT NULL,
			ceiling  INTEGER NOT NULL,
			PRIMARY KEY (provider, day)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertReading writes one normalized reading, replacing any existing row
// for the same (location, provider, instant). Out-of-order writes relative
// to the location's newest row are logged; the window query orders by time,
// so a late row is merely noted, not rejected.
func (s *Store) UpsertReading(ctx context.Context, r domain.RawReading) error {
	var newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(observed_at) FROM readings WHERE location_id = ?`, r.LocationID,
	).Scan(&newest)
	if err != nil {
		return fmt.Errorf("check reading order: %w", err)
	}
	if newest.Valid && r.ObservedAt.UTC().Unix() < newest.Int64 {
		s.logger.Warn("out-of-order reading",
			"location", r.LocationID,
			"observed_at", r.ObservedAt.UTC(),
			"newest", time.Unix(newest.Int64, 0).UTC(),
		)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readings (location_id, provider, observed_at, pm25, pm10, o3, no2, so2, co)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_id, provider, observed_at) DO UPDATE SET
			pm25 = excluded.pm25, pm10 = excluded.pm10, o3 = excluded.o3,
			no2 = excluded.no2, so2 = excluded.so2, co = excluded.co`,
		r.LocationID, r.Provider, r.ObservedAt.UTC().Unix(),
		nullable(r.Values, domain.PM25), nullable(r.Values, domain.PM10),
		nullable(r.Values, domain.O3), nullable(r.Values, domain.NO2),
		nullable(r.Values, domain.SO2), nullable(r.Values, domain.CO),
	)
	if err != nil {
		return fmt.Errorf("upsert reading: %w", err)
	}
	return nil
}

// ReadingsSince returns every reading for the location observed at or after
// since, oldest first.
func (s *Store) ReadingsSince(ctx context.Context, locationID string, since time.Time) ([]domain.RawReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location_id, provider, observed_at, pm25, pm10, o3, no2, so2, co
		FROM readings
		WHERE location_id = ? AND observed_at >= ?
		ORDER BY observed_at ASC`,
		locationID, since.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []domain.RawReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestReading returns the newest reading for the location from the given
// provider, or ok=false when none exists.
func (s *Store) LatestReading(ctx context.Context, locationID, provider string) (domain.RawReading, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location_id, provider, observed_at, pm25, pm10, o3, no2, so2, co
		FROM readings
		WHERE location_id = ? AND provider = ?
		ORDER BY observed_at DESC LIMIT 1`,
		locationID, provider,
	)
	if err != nil {
		return domain.RawReading{}, false, fmt.Errorf("query latest reading: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.RawReading{}, false, rows.Err()
	}
	r, err := scanReading(rows)
	if err != nil {
		return domain.RawReading{}, false, err
	}
	return r, true, rows.Err()
}

// UpsertHealthIndex writes one index record; rerunning a cycle for the same
// (location, hour) replaces the previous record, so re-triggers are safe.
func (s *Store) UpsertHealthIndex(ctx context.Context, rec domain.HealthIndexRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_index
			(location_id, hour, value, category, quality, policy, pm25_avg, pm10_avg, o3_avg, no2_avg, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_id, hour) DO UPDATE SET
			value = excluded.value, category = excluded.category,
			quality = excluded.quality, policy = excluded.policy,
			pm25_avg = excluded.pm25_avg, pm10_avg = excluded.pm10_avg,
			o3_avg = excluded.o3_avg, no2_avg = excluded.no2_avg,
			computed_at = excluded.computed_at`,
		rec.LocationID, rec.Hour.UTC().Unix(), rec.Value, string(rec.Category),
		string(rec.Quality), rec.Policy,
		ptrToNull(rec.Inputs.PM25), ptrToNull(rec.Inputs.PM10),
		ptrToNull(rec.Inputs.O3), ptrToNull(rec.Inputs.NO2),
		rec.ComputedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert health index: %w", err)
	}
	return nil
}

// LatestIndex returns the newest index record for the location, or ok=false.
func (s *Store) LatestIndex(ctx context.Context, locationID string) (domain.HealthIndexRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx, indexSelect+`
		WHERE location_id = ?
		ORDER BY hour DESC LIMIT 1`,
		locationID,
	)
	if err != nil {
		return domain.HealthIndexRecord{}, false, fmt.Errorf("query latest index: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.HealthIndexRecord{}, false, rows.Err()
	}
	rec, err := scanIndex(rows)
	if err != nil {
		return domain.HealthIndexRecord{}, false, err
	}
	return rec, true, rows.Err()
}

// IndexHistory returns the location's index records with hour >= since,
// oldest first.
func (s *Store) IndexHistory(ctx context.Context, locationID string, since time.Time) ([]domain.HealthIndexRecord, error) {
	rows, err := s.db.QueryContext(ctx, indexSelect+`
		WHERE location_id = ? AND hour >= ?
		ORDER BY hour ASC`,
		locationID, since.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query index history: %w", err)
	}
	defer rows.Close()

	var out []domain.HealthIndexRecord
	for rows.Next() {
		rec, err := scanIndex(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// IncrementIfUnder reserves one call in a single conditional upsert. The
// returned flag is true when a row was inserted or updated, i.e. the budget
// had headroom. This is the linearization point for concurrent cycles.
func (s *Store) IncrementIfUnder(ctx context.Context, provider, day string, ceiling int) (bool, error) {
	if ceiling < 1 {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_quota (provider, day, used, ceiling)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(provider, day) DO UPDATE SET used = used + 1
		WHERE used < ceiling`,
		provider, day, ceiling,
	)
	if err != nil {
		return false, fmt.Errorf("increment quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment quota: %w", err)
	}
	return n > 0, nil
}

// Usage returns today's counter for provider. A missing row is zero usage.
func (s *Store) Usage(ctx context.Context, provider, day string) (int, int, error) {
	var used, ceiling int
	err := s.db.QueryRowContext(ctx,
		`SELECT used, ceiling FROM provider_quota WHERE provider = ? AND day = ?`,
		provider, day,
	).Scan(&used, &ceiling)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("query quota: %w", err)
	}
	return used, ceiling, nil
}

// Prune deletes readings observed before cutoff and quota rows for days
// before quotaDay. Returns the number of reading rows removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time, quotaDay string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM readings WHERE observed_at < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_quota WHERE day < ?`, quotaDay); err != nil {
		return removed, fmt.Errorf("prune quota: %w", err)
	}
	return removed, nil
}

const indexSelect = `
	SELECT location_id, hour, value, category, quality, policy,
		pm25_avg, pm10_avg, o3_avg, no2_avg, computed_at
	FROM health_index`

func scanReading(rows *sql.Rows) (domain.RawReading, error) {
	var (
		r          domain.RawReading
		observedAt int64
		cols       [6]sql.NullFloat64
	)
	if err := rows.Scan(&r.LocationID, &r.Provider, &observedAt,
		&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5]); err != nil {
		return domain.RawReading{}, fmt.Errorf("scan reading: %w", err)
	}
	r.ObservedAt = time.Unix(observedAt, 0).UTC()
	r.Values = make(domain.PollutantMap)
	for i, p := range []domain.Pollutant{domain.PM25, domain.PM10, domain.O3, domain.NO2, domain.SO2, domain.CO} {
		if cols[i].Valid {
			r.Values[p] = cols[i].Float64
		}
	}
	return r, nil
}

func scanIndex(rows *sql.Rows) (domain.HealthIndexRecord, error) {
	var (
		rec              domain.HealthIndexRecord
		hour, computedAt int64
		inputs           [4]sql.NullFloat64
	)
	if err := rows.Scan(&rec.LocationID, &hour, &rec.Value, &rec.Category,
		&rec.Quality, &rec.Policy,
		&inputs[0], &inputs[1], &inputs[2], &inputs[3], &computedAt); err != nil {
		return domain.HealthIndexRecord{}, fmt.Errorf("scan index: %w", err)
	}
	rec.Hour = time.Unix(hour, 0).UTC()
	rec.ComputedAt = time.Unix(computedAt, 0).UTC()
	rec.Inputs.PM25 = nullToPtr(inputs[0])
	rec.Inputs.PM10 = nullToPtr(inputs[1])
	rec.Inputs.O3 = nullToPtr(inputs[2])
	rec.Inputs.NO2 = nullToPtr(inputs[3])
	return rec, nil
}

func nullable(m domain.PollutantMap, p domain.Pollutant) sql.NullFloat64 {
	if v, ok := m.Get(p); ok {
		return sql.NullFloat64{Float64: v, Valid: true}
	}
	return sql.NullFloat64{}
}

func ptrToNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
