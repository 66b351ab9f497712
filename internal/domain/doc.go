// Package domain models hourly air-quality observations and the pure
// transformations that turn them into daily AQI facts.
//
// # Data Sources
//
// Hourly samples come from two independent feeds:
//
//   - AQS, the EPA Air Quality System (https://aqs.epa.gov/aqsweb/documents/data_api.html).
//     Authoritative but published with multi-day latency. Tagged SourceAQS.
//   - Envista, the state's continuous monitoring network. Near-real-time but
//     uncertified. Tagged SourceEnvista.
//
// The Reconcile function merges the two into one record per
// (site, parameter, date, hour) key: an AQS value always wins when present,
// an Envista value fills the gap otherwise, and a key with no usable value on
// either side is dropped. The surviving source is recorded on every output
// row so downstream consumers can tell certified from supplemental data.
//
// # AQS Conventions
//
// Sites are identified by FIPS state code, county code, and site number, all
// zero-padded strings ("37", "183", "0014"). Parameter codes are open-ended
// numeric strings: "88101" PM2.5, "81102" PM10, "44201" ozone. Local dates
// are "YYYY-MM-DD" and local times are "HH:MM" at the top of the hour.
// A missing measurement is an empty cell, distinct from a measured zero.
//
// # AQI Derivation
//
// A day's hourly values are averaged per (site, date, source) and the mean is
// mapped through a piecewise-linear breakpoint table:
//
//	aqi = round((aqiHigh-aqiLow)/(concHigh-concLow) * (conc-concLow) + aqiLow)
//
// Bands are inclusive on both ends and non-overlapping, so every in-domain
// concentration lands in exactly one band. Rounding is math.Round, i.e. half
// away from zero. A concentration outside every band yields AQIOutOfRange.
//
// PM2.5 has two table versions: the pre-2024 breakpoints ("legacy") and the
// May 2024 EPA revision ("current"). VersionAuto picks by the date the
// computation runs, not the observation date: rerunning a historical year
// after the 2024-05-06 cutover recomputes it with the current table. That is
// the published-AQI convention, kept deliberately; callers wanting the
// as-of-observation table pass VersionLegacy or VersionCurrent explicitly.
//
// # Categories
//
// Integer AQI values classify into the standard six categories (Good 0-50
// through Hazardous 301-500). Values outside 0-500, including the
// out-of-range sentinel, classify as "Unknown" rather than being dropped.
package domain
