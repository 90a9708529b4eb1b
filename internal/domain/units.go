package domain

// Fixed molar conversion factors at standard temperature and pressure.
// These are physical constants, never derived at runtime.
const (
	o3PPBFactor  = 2.00  // ppb → µg/m³
	no2PPBFactor = 1.88  // ppb → µg/m³
	so2PPBFactor = 2.62  // ppb → µg/m³
	coPPMFactor  = 1.145 // ppm → mg/m³
)

// ppbFactor returns the ppb→µg/m³ factor for gas-phase pollutants reported
// in parts per billion. Particulates are never reported in ppb.
func ppbFactor(p Pollutant) (float64, bool) {
	switch p {
	case O3:
		return o3PPBFactor, true
	case NO2:
		return no2PPBFactor, true
	case SO2:
		return so2PPBFactor, true
	}
	return 0, false
}

// FromPPB converts a ppb value into the canonical µg/m³ unit.
// Returns false for pollutants not reported in ppb.
func FromPPB(p Pollutant, ppb float64) (float64, bool) {
	f, ok := ppbFactor(p)
	if !ok {
		return 0, false
	}
	return ppb * f, true
}

// ToPPB is the inverse of FromPPB, used for round-trip checks and for
// providers that want gas values back in their native unit.
func ToPPB(p Pollutant, ug float64) (float64, bool) {
	f, ok := ppbFactor(p)
	if !ok {
		return 0, false
	}
	return ug / f, true
}

// FromMicrograms normalizes a µg/m³ provider value into canonical storage
// units. CO is stored as mg/m³, so its µg/m³ readings are divided by 1000;
// everything else passes through. Returns false for unknown pollutants —
// absent data is expected and must not abort a cycle.
func FromMicrograms(p Pollutant, ug float64) (float64, bool) {
	if !Known(p) {
		return 0, false
	}
	if p == CO {
		return ug / 1000.0, true
	}
	return ug, true
}

// FromIndex inverts an index-scale provider value into a canonical-unit
// concentration via the published breakpoint tables. Fails closed (returns
// false) for unknown pollutants or index values outside every published
// band; it never extrapolates.
func FromIndex(p Pollutant, index float64) (float64, bool) {
	native, ok := invertIndex(p, index)
	if !ok {
		return 0, false
	}
	switch p {
	case O3, NO2, SO2:
		return native * mustPPBFactor(p), true
	case CO:
		// CO bands are in ppm; canonical unit is mg/m³.
		return native * coPPMFactor, true
	default:
		// Particulate tables are already in µg/m³.
		return native, true
	}
}

func mustPPBFactor(p Pollutant) float64 {
	f, ok := ppbFactor(p)
	if !ok {
		panic("no ppb factor for pollutant " + string(p))
	}
	return f
}
