package domain

import (
	"math"

	"github.com/golang/geo/s2"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distances.
const earthRadiusMeters = 6371000.0

// Location is a monitoring point from the static catalogue. Immutable
// reference data; locations are never created or deleted at runtime.
type Location struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Population int     `json:"population,omitempty"` // optional weighting for downstream consumers
}

// Catalogue returns the fixed set of monitored locations.
//
// Coordinates cover the Bangkok metropolitan area. The slice is freshly
// allocated on each call so callers can reorder it safely.
func Catalogue() []Location {
	return []Location{
		{ID: "bkk-din-daeng", Name: "Din Daeng", Lat: 13.7622, Lon: 100.5504, Population: 122000},
		{ID: "bkk-bang-na", Name: "Bang Na", Lat: 13.6661, Lon: 100.6051, Population: 95000},
		{ID: "bkk-chatuchak", Name: "Chatuchak", Lat: 13.8289, Lon: 100.5572, Population: 157000},
		{ID: "bkk-thonburi", Name: "Thonburi", Lat: 13.7249, Lon: 100.4864, Population: 111000},
		{ID: "bkk-phra-khanong", Name: "Phra Khanong", Lat: 13.7022, Lon: 100.6018, Population: 89000},
		{ID: "bkk-lat-phrao", Name: "Lat Phrao", Lat: 13.8037, Lon: 100.6079, Population: 118000},
		{ID: "bkk-pathum-wan", Name: "Pathum Wan", Lat: 13.7466, Lon: 100.5347, Population: 45000},
		{ID: "bkk-bang-khen", Name: "Bang Khen", Lat: 13.8745, Lon: 100.5974, Population: 190000},
		{ID: "bkk-khlong-toei", Name: "Khlong Toei", Lat: 13.7083, Lon: 100.5452, Population: 94000},
		{ID: "bkk-min-buri", Name: "Min Buri", Lat: 13.8138, Lon: 100.7319, Population: 140000},
		{ID: "nonthaburi-city", Name: "Nonthaburi", Lat: 13.8622, Lon: 100.5144, Population: 255000},
		{ID: "samut-prakan-city", Name: "Samut Prakan", Lat: 13.5991, Lon: 100.5998, Population: 388000},
	}
}

// HaversineMeters returns the great-circle distance between two points in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}

// NearestLocation returns the catalogue location closest to (lat, lon) by
// great-circle distance, along with that distance in meters. Returns false
// if the catalogue is empty.
func NearestLocation(locs []Location, lat, lon float64) (Location, float64, bool) {
	if len(locs) == 0 {
		return Location{}, 0, false
	}
	best := locs[0]
	bestDist := math.Inf(1)
	for _, loc := range locs {
		d := HaversineMeters(lat, lon, loc.Lat, loc.Lon)
		if d < bestDist {
			best = loc
			bestDist = d
		}
	}
	return best, bestDist, true
}
