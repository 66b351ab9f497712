package domain

import (
	"time"
)

// Source identifies which upstream feed supplied a value.
type Source string

const (
	// SourceAQS is the primary feed: certified EPA Air Quality System data.
	SourceAQS Source = "AQS"
	// SourceEnvista is the secondary feed: near-real-time state network data.
	SourceEnvista Source = "Envista"
)

// SiteKey identifies a monitoring site by its FIPS-style code triple.
// All three are zero-padded strings as published by AQS.
type SiteKey struct {
	StateCode  string `json:"state_code"`
	CountyCode string `json:"county_code"`
	SiteNumber string `json:"site_number"`
}

// Observation is one raw hourly pollutant reading from either feed.
// Measurement is nil when the feed reported the hour without a value;
// that is distinct from a measured zero.
type Observation struct {
	Site          SiteKey  `json:"site"`
	ParameterCode string   `json:"parameter_code"`
	DateLocal     string   `json:"date_local"` // YYYY-MM-DD
	TimeLocal     string   `json:"time_local"` // HH:MM, top of the hour
	Measurement   *float64 `json:"sample_measurement"`
	Source        Source   `json:"data_source"`
}

// HourlyRecord is a reconciled hourly reading. Measurement is guaranteed
// present and Source records which feed supplied it.
type HourlyRecord struct {
	Site          SiteKey `json:"site"`
	ParameterCode string  `json:"parameter_code"`
	DateLocal     string  `json:"date_local"`
	TimeLocal     string  `json:"time_local"`
	Measurement   float64 `json:"sample_measurement"`
	Source        Source  `json:"data_source"`
}

// DailyAQI is one site/pollutant/day/source summary. AQI is AQIOutOfRange
// when ConcAvg falls outside the breakpoint domain. A day whose hours span
// both sources produces two records, one per source, never a blended one.
type DailyAQI struct {
	Site          SiteKey   `json:"site"`
	ParameterCode string    `json:"parameter_code"`
	DateLocal     string    `json:"date_local"`
	ConcAvg       float64   `json:"conc_avg"`
	AQI           int       `json:"aqi"`
	Source        Source    `json:"data_source"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// CategorySummary counts the days a site spent in one AQI category in a year.
type CategorySummary struct {
	ParameterCode string  `json:"parameter_code"`
	Category      string  `json:"category"`
	Site          SiteKey `json:"site"`
	Year          int     `json:"year"`
	Days          int     `json:"days"`
}

// valid reports whether an observation carries every merge-key field.
// Rows failing this are treated as absent during reconciliation.
func (o Observation) valid() bool {
	return o.Site.StateCode != "" &&
		o.Site.CountyCode != "" &&
		o.Site.SiteNumber != "" &&
		o.DateLocal != "" &&
		o.TimeLocal != ""
}

// Usable reports whether an observation can contribute a value to
// reconciliation: key fields complete and a measurement present.
func (o Observation) Usable() bool {
	return o.valid() && o.Measurement != nil
}
