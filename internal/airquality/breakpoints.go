package airquality

import "math"

type breakpoint struct {
	cLo, cHi float64
	iLo, iHi float64
}

// US EPA breakpoints. Concentrations use the canonical units documented on Pollutants.
var (
	pm25Breakpoints = []breakpoint{
		{0.0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 350.4, 301, 400},
		{350.5, 500.4, 401, 500},
	}
	pm10Breakpoints = []breakpoint{
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
		{255, 354, 151, 200},
		{355, 424, 201, 300},
		{425, 504, 301, 400},
		{505, 604, 401, 500},
	}
	// 8-hour ozone table; the top two bands come from the 1-hour table.
	o3Breakpoints = []breakpoint{
		{0, 54, 0, 50},
		{55, 70, 51, 100},
		{71, 85, 101, 150},
		{86, 105, 151, 200},
		{106, 200, 201, 300},
		{201, 504, 301, 400},
		{505, 604, 401, 500},
	}
	no2Breakpoints = []breakpoint{
		{0, 53, 0, 50},
		{54, 100, 51, 100},
		{101, 360, 101, 150},
		{361, 649, 151, 200},
		{650, 1249, 201, 300},
		{1250, 1649, 301, 400},
		{1650, 2049, 401, 500},
	}
	so2Breakpoints = []breakpoint{
		{0, 35, 0, 50},
		{36, 75, 51, 100},
		{76, 185, 101, 150},
		{186, 304, 151, 200},
		{305, 604, 201, 300},
		{605, 804, 301, 400},
		{805, 1004, 401, 500},
	}
	coBreakpoints = []breakpoint{
		{0.0, 4.4, 0, 50},
		{4.5, 9.4, 51, 100},
		{9.5, 12.4, 101, 150},
		{12.5, 15.4, 151, 200},
		{15.5, 30.4, 201, 300},
		{30.5, 40.4, 301, 400},
		{40.5, 50.4, 401, 500},
	}
)

// subIndex interpolates one pollutant's concentration into an AQI sub-index.
// Values falling between two bands take the upper band's floor; values past the table cap at 500.
func subIndex(c float64, table []breakpoint) float64 {
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	for _, bp := range table {
		if c <= bp.cHi {
			if c < bp.cLo {
				return bp.iLo
			}
			return (bp.iHi-bp.iLo)/(bp.cHi-bp.cLo)*(c-bp.cLo) + bp.iLo
		}
	}
	return 500
}

// ComputeAQI derives the AQI from pollutant concentrations as the maximum
// sub-index. It returns nil when no pollutant is present.
func ComputeAQI(p Pollutants) *float64 {
	var (
		best  float64
		found bool
	)
	add := func(v *float64, table []breakpoint) {
		if v == nil {
			return
		}
		idx := subIndex(*v, table)
		if !found || idx > best {
			best = idx
		}
		found = true
	}

	add(p.PM25, pm25Breakpoints)
	add(p.PM10, pm10Breakpoints)
	add(p.O3, o3Breakpoints)
	add(p.NO2, no2Breakpoints)
	add(p.SO2, so2Breakpoints)
	add(p.CO, coBreakpoints)

	if !found {
		return nil
	}
	rounded := math.Round(best)
	return &rounded
}

// WorseAQI returns the higher of two optional AQI values.
func WorseAQI(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := math.Max(*a, *b)
	return &v
}

var breakpointTables = map[string][]breakpoint{
	"pm25": pm25Breakpoints,
	"pm10": pm10Breakpoints,
	"o3":   o3Breakpoints,
	"no2":  no2Breakpoints,
	"so2":  so2Breakpoints,
	"co":   coBreakpoints,
}

// ConcentrationForIndex inverts a pollutant sub-index back into a concentration
// in canonical units. Unknown pollutant names report false.
func ConcentrationForIndex(pollutant string, idx float64) (float64, bool) {
	table, ok := breakpointTables[pollutant]
	if !ok || idx < 0 || math.IsNaN(idx) {
		return 0, false
	}
	for _, bp := range table {
		if idx <= bp.iHi {
			if idx < bp.iLo {
				return bp.cLo, true
			}
			return (idx-bp.iLo)*(bp.cHi-bp.cLo)/(bp.iHi-bp.iLo) + bp.cLo, true
		}
	}
	return table[len(table)-1].cHi, true
}

// Molecular weights (g/mol) for gas unit conversion at 25 °C / 1 atm.
const (
	molarVolume = 24.45
	mwO3        = 48.00
	mwNO2       = 46.01
	mwSO2       = 64.07
	mwCO        = 28.01
)

// MicrogramsToPPB converts a gas concentration in µg/m³ to ppb.
func MicrogramsToPPB(ugm3, molecularWeight float64) float64 {
	return ugm3 * molarVolume / molecularWeight
}

// GasToCanonical converts µg/m³ readings of O3, NO2, SO2 and CO to ppb/ppm in place.
func (p *Pollutants) GasToCanonical() {
	conv := func(v *float64, mw, scale float64) *float64 {
		if v == nil {
			return nil
		}
		out := MicrogramsToPPB(*v, mw) / scale
		return &out
	}
	p.O3 = conv(p.O3, mwO3, 1)
	p.NO2 = conv(p.NO2, mwNO2, 1)
	p.SO2 = conv(p.SO2, mwSO2, 1)
	p.CO = conv(p.CO, mwCO, 1000)
}
