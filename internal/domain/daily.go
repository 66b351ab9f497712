package domain

import (
	"errors"
	"sort"
)

// ErrNoData reports a scope with no reconciled hours at all, as opposed to
// data that is present but out of the breakpoint domain.
var ErrNoData = errors.New("no reconciled hourly data for scope")

// dayKey groups hours into daily averages. Source is part of the key: a day
// whose hours span both feeds yields two partial-day records, because
// blending certified and uncertified hours into one average would make the
// provenance tag meaningless.
type dayKey struct {
	site   SiteKey
	date   string
	source Source
}

// DeriveDailyAQI averages one pollutant-year's reconciled hours per
// (site, date, source) and maps each mean through the breakpoint table.
// A day with a single reported hour is still averaged and reported;
// whether that is enough hours to certify is a downstream decision.
// Returns ErrNoData when records is empty.
func DeriveDailyAQI(records []HourlyRecord, table Table) ([]DailyAQI, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	type accum struct {
		sum   float64
		count int
	}
	groups := make(map[dayKey]*accum)
	for _, rec := range records {
		k := dayKey{site: rec.Site, date: rec.DateLocal, source: rec.Source}
		a := groups[k]
		if a == nil {
			a = &accum{}
			groups[k] = a
		}
		a.sum += rec.Measurement
		a.count++
	}

	generatedAt := clock.Now().UTC()
	out := make([]DailyAQI, 0, len(groups))
	for k, a := range groups {
		concAvg := a.sum / float64(a.count)
		out = append(out, DailyAQI{
			Site:          k.site,
			ParameterCode: table.ParameterCode,
			DateLocal:     k.date,
			ConcAvg:       concAvg,
			AQI:           table.Lookup(concAvg),
			Source:        k.source,
			GeneratedAt:   generatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Site != b.Site {
			return lessSite(a.Site, b.Site)
		}
		if a.DateLocal != b.DateLocal {
			return a.DateLocal < b.DateLocal
		}
		return a.Source < b.Source
	})
	return out, nil
}
