// Package domain models air quality measurements and the health index
// derived from them.
//
// # Data Sources
//
// Readings come from two providers with different shapes and pricing:
//
//   - The primary provider is a dense station network queried by bounding box
//     or by station id. It reports per-pollutant values on a US-AQI-style
//     index scale rather than as concentrations.
//   - The secondary provider is a coarse, spatially averaged model queried by
//     a single lat/lon point. It reports concentrations directly, in µg/m³
//     for every pollutant including CO.
//
// The secondary provider is rate limited per calendar day, so it is only used
// to fill pollutants the primary network does not cover at a location, and
// point fetches are shared across nearby locations through a fixed 3×3 grid
// over the catalogue bounding box (see [NewGrid]).
//
// # Unit Conventions
//
// Canonical storage units:
//
//	PM2.5, PM10, O3, NO2, SO2:  µg/m³
//	CO:                         mg/m³ (secondary provider µg/m³ values are divided by 1000)
//
// Gas-phase pollutants reported in ppb convert to µg/m³ with fixed molar
// factors at standard temperature and pressure:
//
//	O3  × 2.00
//	NO2 × 1.88
//	SO2 × 2.62
//	CO  × 1.145 (ppm → mg/m³)
//
// Index-scale values from the primary provider are inverted back to
// concentrations through the published piecewise-linear breakpoint tables.
// An index outside every published band fails closed: the pollutant is
// reported unavailable rather than extrapolated. "UNK" and absent fields are
// likewise unavailable, never zero — zero is a valid concentration.
//
// # Health Index
//
// The index follows an additive percentage-excess-risk model. For each
// pollutant P with 3-hour rolling mean v and coefficient βP:
//
//	%ER_P = 100 × (e^(βP·v) − 1)
//
// The contributions are summed and scaled to a 1–10+ display range:
//
//	Index = (10 / 105.19) × Σ %ER_P
//
// rounded to one decimal and floored at 1.0. An unavailable pollutant
// contributes zero risk. Coefficient sets and category thresholds vary
// between published revisions of the model; both supported tables are named
// policies (see [ReferencePolicy] and [StrictPolicy]) so the choice is
// explicit configuration, not a buried constant.
package domain
