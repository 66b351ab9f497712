package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pm25Table(t *testing.T, version Version) Table {
	t.Helper()
	table, err := DefaultBreakpoints().Effective("88101", version)
	require.NoError(t, err)
	return table
}

func TestTableLookup(t *testing.T) {
	table := pm25Table(t, VersionCurrent)

	tests := []struct {
		name string
		conc float64
		want int
	}{
		{"zero", 0.0, 0},
		{"interpolated mid band", 10.0, 42}, // round(50/12 * 10) = round(41.67)
		{"first band top", 12.0, 50},
		{"second band bottom", 12.1, 51},
		{"second band top", 35.4, 100},
		{"third band bottom", 35.5, 101},
		{"top band upper edge", 425.4, 500},
		{"negative out of range", -1.0, AQIOutOfRange},
		{"above top band", 10000.0, AQIOutOfRange},
		{"gap between bands", 12.05, AQIOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Lookup(tt.conc))
		})
	}
}

func TestTableLookup_BoundaryCoverage(t *testing.T) {
	// Each shared boundary belongs to exactly one band: 12.0 interpolates
	// inside 0-12 and 12.1 inside 12.1-35.4. No double coverage, no gap in
	// published readings (which carry one decimal).
	table := pm25Table(t, VersionCurrent)

	assert.Equal(t, 50, table.Lookup(12.0))
	assert.Equal(t, 51, table.Lookup(12.1))
}

func TestTableLookup_Monotonic(t *testing.T) {
	table := pm25Table(t, VersionCurrent)

	prev := table.Lookup(0)
	for c := 0.1; c <= 425.4; c += 0.1 {
		got := table.Lookup(c)
		if got == AQIOutOfRange {
			continue // inter-band gap, e.g. 12.01..12.09
		}
		assert.GreaterOrEqual(t, got, prev, "conc %.1f", c)
		prev = got
	}
}

func TestTableLookup_RoundsHalfAwayFromZero(t *testing.T) {
	// Synthetic band where concentration 1.0 interpolates to exactly 0.5:
	// half values round up, so the result is 1, not 0.
	table := Table{Bands: []Band{{ConcLow: 0, ConcHigh: 10, AQILow: 0, AQIHigh: 5}}}

	assert.Equal(t, 1, table.Lookup(1.0))
	assert.Equal(t, 2, table.Lookup(3.0)) // 1.5 rounds to 2
	assert.Equal(t, 1, table.Lookup(2.0)) // exact 1.0
}

func TestLegacyCurrentDivergence(t *testing.T) {
	// The 2024 revision tightened the upper PM2.5 bands: 200 ug/m3 sits in
	// different bands under the two versions.
	legacy := pm25Table(t, VersionLegacy)
	current := pm25Table(t, VersionCurrent)

	assert.Equal(t, 250, legacy.Lookup(200.0))
	assert.Equal(t, 275, current.Lookup(200.0))

	// Below 55.5 the versions agree.
	assert.Equal(t, legacy.Lookup(40.0), current.Lookup(40.0))
}

func TestEffective_AutoSelection(t *testing.T) {
	registry := DefaultBreakpoints()

	t.Run("before cutover auto equals legacy", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(CutoverDate.Add(-24 * time.Hour)))
		defer SetClock(nil)

		auto, err := registry.Effective("88101", VersionAuto)
		require.NoError(t, err)
		legacy, err := registry.Effective("88101", VersionLegacy)
		require.NoError(t, err)
		assert.Equal(t, legacy, auto)
	})

	t.Run("on cutover auto equals current", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(CutoverDate))
		defer SetClock(nil)

		auto, err := registry.Effective("88101", VersionAuto)
		require.NoError(t, err)
		current, err := registry.Effective("88101", VersionCurrent)
		require.NoError(t, err)
		assert.Equal(t, current, auto)
	})

	t.Run("after cutover auto equals current", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(CutoverDate.Add(365 * 24 * time.Hour)))
		defer SetClock(nil)

		auto, err := registry.Effective("88101", VersionAuto)
		require.NoError(t, err)
		assert.Equal(t, VersionCurrent, auto.Version)
	})
}

func TestEffective_UnknownParameter(t *testing.T) {
	registry := DefaultBreakpoints()

	_, err := registry.Effective("42401", VersionCurrent)
	require.Error(t, err)
	var noTable ErrNoTable
	require.ErrorAs(t, err, &noTable)
	assert.Equal(t, "42401", noTable.ParameterCode)
}

func TestRegistryIsDataDriven(t *testing.T) {
	// A new pollutant is a registry entry, not a code change.
	so2 := Table{
		ParameterCode: "42401",
		Version:       VersionCurrent,
		Bands:         []Band{{0, 35, 0, 50}, {36, 75, 51, 100}},
	}
	registry := NewBreakpointRegistry(so2)

	table, err := registry.Effective("42401", VersionCurrent)
	require.NoError(t, err)
	assert.Equal(t, 50, table.Lookup(35))
	assert.Equal(t, AQIOutOfRange, table.Lookup(35.5))
}

func TestDefaultBreakpoints_CoverPublishedPollutants(t *testing.T) {
	registry := DefaultBreakpoints()
	assert.ElementsMatch(t, []string{"88101", "81102", "44201"}, registry.Parameters())

	for _, code := range registry.Parameters() {
		assert.Len(t, registry.Versions(code), 2, "parameter %s", code)
	}
}
