package domain

import "math"

// GridCell is one fetch coordinate on the supplement grid. Cells are indexed
// row-major from the south-west corner; the index is stable for a given grid
// and is used as the deterministic tie-break in Assign.
type GridCell struct {
	Index int
	Lat   float64
	Lon   float64
}

// Grid partitions a coverage bounding box into an N×N lattice of cell
// centers. It is derived from the catalogue each cycle and never persisted.
type Grid struct {
	n              int
	minLat, maxLat float64
	minLon, maxLon float64
	cells          []GridCell
}

// degenerateSpan pads a zero-area bounding box (single location, or all
// locations on one meridian/parallel) so cell centers remain distinct.
const degenerateSpan = 0.1

// NewGrid builds an n×n grid over the bounding box of locs.
func NewGrid(n int, locs []Location) Grid {
	g := Grid{n: n}
	if n <= 0 || len(locs) == 0 {
		return g
	}

	g.minLat, g.maxLat = math.Inf(1), math.Inf(-1)
	g.minLon, g.maxLon = math.Inf(1), math.Inf(-1)
	for _, loc := range locs {
		g.minLat = math.Min(g.minLat, loc.Lat)
		g.maxLat = math.Max(g.maxLat, loc.Lat)
		g.minLon = math.Min(g.minLon, loc.Lon)
		g.maxLon = math.Max(g.maxLon, loc.Lon)
	}
	if g.maxLat-g.minLat < degenerateSpan {
		mid := (g.maxLat + g.minLat) / 2
		g.minLat, g.maxLat = mid-degenerateSpan/2, mid+degenerateSpan/2
	}
	if g.maxLon-g.minLon < degenerateSpan {
		mid := (g.maxLon + g.minLon) / 2
		g.minLon, g.maxLon = mid-degenerateSpan/2, mid+degenerateSpan/2
	}

	latStep := (g.maxLat - g.minLat) / float64(n)
	lonStep := (g.maxLon - g.minLon) / float64(n)
	g.cells = make([]GridCell, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			g.cells = append(g.cells, GridCell{
				Index: row*n + col,
				Lat:   g.minLat + (float64(row)+0.5)*latStep,
				Lon:   g.minLon + (float64(col)+0.5)*lonStep,
			})
		}
	}
	return g
}

// Cells returns the cell centers in index order.
func (g Grid) Cells() []GridCell {
	return g.cells
}

// Assign maps a coordinate to its nearest cell by Euclidean distance in
// lat/lon degree space. Exact ties go to the lowest-indexed cell, which the
// in-order scan with a strict comparison guarantees. Returns false for an
// empty grid.
func (g Grid) Assign(lat, lon float64) (GridCell, bool) {
	if len(g.cells) == 0 {
		return GridCell{}, false
	}
	best := g.cells[0]
	bestDist := math.Inf(1)
	for _, c := range g.cells {
		dLat := lat - c.Lat
		dLon := lon - c.Lon
		d := dLat*dLat + dLon*dLon
		if d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, true
}
