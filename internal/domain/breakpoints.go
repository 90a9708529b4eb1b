package domain

// breakpoint is one band of a piecewise-linear index scale: index values in
// [indexLo, indexHi] map linearly onto concentrations in [concLo, concHi].
type breakpoint struct {
	indexLo, indexHi float64
	concLo, concHi   float64
}

// breakpointTables are the published US-AQI bands per pollutant, in each
// pollutant's native reporting unit: µg/m³ for PM2.5 and PM10, ppb for O3,
// NO2 and SO2, ppm for CO. Values outside every band fail closed.
var breakpointTables = map[Pollutant][]breakpoint{
	PM25: {
		{0, 50, 0.0, 12.0},
		{51, 100, 12.1, 35.4},
		{101, 150, 35.5, 55.4},
		{151, 200, 55.5, 150.4},
		{201, 300, 150.5, 250.4},
		{301, 400, 250.5, 350.4},
		{401, 500, 350.5, 500.4},
	},
	PM10: {
		{0, 50, 0, 54},
		{51, 100, 55, 154},
		{101, 150, 155, 254},
		{151, 200, 255, 354},
		{201, 300, 355, 424},
		{301, 400, 425, 504},
		{401, 500, 505, 604},
	},
	O3: {
		{0, 50, 0, 54},
		{51, 100, 55, 70},
		{101, 150, 71, 85},
		{151, 200, 86, 105},
		{201, 300, 106, 200},
	},
	NO2: {
		{0, 50, 0, 53},
		{51, 100, 54, 100},
		{101, 150, 101, 360},
		{151, 200, 361, 649},
		{201, 300, 650, 1249},
		{301, 400, 1250, 1649},
		{401, 500, 1650, 2049},
	},
	SO2: {
		{0, 50, 0, 35},
		{51, 100, 36, 75},
		{101, 150, 76, 185},
		{151, 200, 186, 304},
		{201, 300, 305, 604},
		{301, 400, 605, 804},
		{401, 500, 805, 1004},
	},
	CO: {
		{0, 50, 0.0, 4.4},
		{51, 100, 4.5, 9.4},
		{101, 150, 9.5, 12.4},
		{151, 200, 12.5, 15.4},
		{201, 300, 15.5, 30.4},
		{301, 400, 30.5, 40.4},
		{401, 500, 40.5, 50.4},
	},
}

// invertIndex maps an index value back to a concentration in the pollutant's
// native reporting unit. Returns false when the pollutant has no published
// table or the index falls outside every band.
func invertIndex(p Pollutant, index float64) (float64, bool) {
	table, ok := breakpointTables[p]
	if !ok {
		return 0, false
	}
	for _, b := range table {
		if index < b.indexLo || index > b.indexHi {
			continue
		}
		if b.indexHi == b.indexLo {
			return b.concLo, true
		}
		frac := (index - b.indexLo) / (b.indexHi - b.indexLo)
		return b.concLo + frac*(b.concHi-b.concLo), true
	}
	return 0, false
}
