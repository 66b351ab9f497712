package domain

import (
	"fmt"
	"math"
	"time"
)

// AQIOutOfRange is returned for concentrations outside every breakpoint band,
// negative readings included. It classifies as "Unknown" downstream.
const AQIOutOfRange = -1

// Version names a breakpoint table revision.
type Version string

const (
	// VersionLegacy is the pre-2024 breakpoint set.
	VersionLegacy Version = "legacy"
	// VersionCurrent is the May 2024 EPA revision.
	VersionCurrent Version = "current"
	// VersionAuto picks current or legacy by the date the computation runs
	// (clock.Now against CutoverDate), not by the observation date.
	VersionAuto Version = "auto"
)

// CutoverDate is the AirNow switch-over to the 2024 breakpoint revision.
var CutoverDate = time.Date(2024, time.May, 6, 0, 0, 0, 0, time.UTC)

// Band maps one inclusive concentration interval onto one AQI interval.
type Band struct {
	ConcLow  float64 `json:"conc_low"`
	ConcHigh float64 `json:"conc_high"`
	AQILow   int     `json:"aqi_low"`
	AQIHigh  int     `json:"aqi_high"`
}

// Table is an ordered, non-overlapping band sequence for one pollutant.
type Table struct {
	ParameterCode string  `json:"parameter_code"`
	Version       Version `json:"version"`
	Bands         []Band  `json:"bands"`
}

// Lookup converts a concentration to an AQI value by scanning bands in
// ascending order and interpolating linearly inside the first band whose
// [ConcLow, ConcHigh] interval contains c, inclusive on both ends.
// Rounding is math.Round: halves round away from zero, so an interpolated
// 50.5 becomes 51, never 50. Out-of-domain concentrations return
// AQIOutOfRange rather than an error.
func (t Table) Lookup(c float64) int {
	for _, b := range t.Bands {
		if c >= b.ConcLow && c <= b.ConcHigh {
			fraction := (c - b.ConcLow) / (b.ConcHigh - b.ConcLow)
			return int(math.Round(float64(b.AQIHigh-b.AQILow)*fraction + float64(b.AQILow)))
		}
	}
	return AQIOutOfRange
}

// ErrNoTable reports a parameter code with no registered breakpoint table.
type ErrNoTable struct {
	ParameterCode string
	Version       Version
}

func (e ErrNoTable) Error() string {
	return fmt.Sprintf("no breakpoint table for parameter %s version %s", e.ParameterCode, e.Version)
}

// BreakpointRegistry maps parameter code and version to a breakpoint table.
// Tables are data, not code: loaded once at startup and immutable after,
// so new pollutants or revisions need no logic changes.
type BreakpointRegistry struct {
	tables map[string]map[Version]Table
}

// NewBreakpointRegistry builds a registry from explicit tables.
func NewBreakpointRegistry(tables ...Table) *BreakpointRegistry {
	r := &BreakpointRegistry{tables: make(map[string]map[Version]Table)}
	for _, t := range tables {
		byVersion := r.tables[t.ParameterCode]
		if byVersion == nil {
			byVersion = make(map[Version]Table)
			r.tables[t.ParameterCode] = byVersion
		}
		byVersion[t.Version] = t
	}
	return r
}

// Effective resolves the table for a parameter under the given mode.
// VersionAuto resolves to current on or after CutoverDate, else legacy,
// judged by the package clock ("what table would I use computing today").
func (r *BreakpointRegistry) Effective(parameterCode string, mode Version) (Table, error) {
	version := mode
	if mode == VersionAuto {
		if clock.Now().UTC().Before(CutoverDate) {
			version = VersionLegacy
		} else {
			version = VersionCurrent
		}
	}

	byVersion, ok := r.tables[parameterCode]
	if !ok {
		return Table{}, ErrNoTable{ParameterCode: parameterCode, Version: version}
	}
	t, ok := byVersion[version]
	if !ok {
		return Table{}, ErrNoTable{ParameterCode: parameterCode, Version: version}
	}
	return t, nil
}

// Parameters returns the registered parameter codes in unspecified order.
func (r *BreakpointRegistry) Parameters() []string {
	params := make([]string, 0, len(r.tables))
	for code := range r.tables {
		params = append(params, code)
	}
	return params
}

// Versions returns the registered table versions for one parameter.
func (r *BreakpointRegistry) Versions(parameterCode string) []Table {
	byVersion := r.tables[parameterCode]
	out := make([]Table, 0, len(byVersion))
	for _, t := range byVersion {
		out = append(out, t)
	}
	return out
}

// DefaultBreakpoints returns the registry for the pollutants the district
// publishes today. PM2.5 carries both revisions; the 2024 change tightened
// the bands above 55.4 ug/m3. PM10 and ozone were untouched by the revision,
// so the same table is registered under both versions.
func DefaultBreakpoints() *BreakpointRegistry {
	pm25Current := []Band{
		{0.0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 125.4, 151, 200},
		{125.5, 225.4, 201, 300},
		{225.5, 325.4, 301, 400},
		{325.5, 425.4, 401, 500},
	}
	pm25Legacy := []Band{
		{0.0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 350.4, 301, 400},
		{350.5, 500.4, 401, 500},
	}
	pm10 := []Band{
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
		{255, 354, 151, 200},
		{355, 424, 201, 300},
		{425, 604, 301, 500},
	}
	ozone := []Band{
		{0.000, 0.054, 0, 50},
		{0.055, 0.070, 51, 100},
		{0.071, 0.085, 101, 150},
		{0.086, 0.105, 151, 200},
		{0.106, 0.200, 201, 300},
		{0.201, 0.404, 301, 500},
	}

	return NewBreakpointRegistry(
		Table{ParameterCode: "88101", Version: VersionCurrent, Bands: pm25Current},
		Table{ParameterCode: "88101", Version: VersionLegacy, Bands: pm25Legacy},
		Table{ParameterCode: "81102", Version: VersionCurrent, Bands: pm10},
		Table{ParameterCode: "81102", Version: VersionLegacy, Bands: pm10},
		Table{ParameterCode: "44201", Version: VersionCurrent, Bands: ozone},
		Table{ParameterCode: "44201", Version: VersionLegacy, Bands: ozone},
	)
}
