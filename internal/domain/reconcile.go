package domain

import (
	"sort"
)

// mergeKey is the exact-match join key for reconciliation. No fuzzy or
// nearest-hour matching: two rows merge only when the site triple,
// parameter, date, and hour all agree.
type mergeKey struct {
	site      SiteKey
	parameter string
	date      string
	hour      string
}

// mergePair holds at most one observation per side for a key.
type mergePair struct {
	primary   *Observation
	secondary *Observation
}

// mergeCase classifies a key by which sides hold a usable (non-nil) value.
type mergeCase int

const (
	caseNeither mergeCase = iota
	casePrimaryOnly
	caseSecondaryOnly
	caseBoth
)

func (p mergePair) classify() mergeCase {
	hasPrimary := p.primary != nil && p.primary.Measurement != nil
	hasSecondary := p.secondary != nil && p.secondary.Measurement != nil
	switch {
	case hasPrimary && hasSecondary:
		return caseBoth
	case hasPrimary:
		return casePrimaryOnly
	case hasSecondary:
		return caseSecondaryOnly
	default:
		return caseNeither
	}
}

// Reconcile merges primary (AQS) and secondary (Envista) observations into
// one record per (site, parameter, date, hour) key. The primary value wins
// whenever present; the secondary value fills gaps; keys with no usable
// value on either side are omitted. Rows missing key fields are skipped as
// absent rather than failing the merge. The result is sorted by site, date,
// and hour so repeated runs over the same input are byte-identical.
func Reconcile(primary, secondary []Observation) []HourlyRecord {
	pairs := make(map[mergeKey]*mergePair, len(primary)+len(secondary))

	index := func(obs []Observation, takePrimary bool) {
		for i := range obs {
			o := obs[i]
			if !o.valid() {
				continue
			}
			k := mergeKey{site: o.Site, parameter: o.ParameterCode, date: o.DateLocal, hour: o.TimeLocal}
			p := pairs[k]
			if p == nil {
				p = &mergePair{}
				pairs[k] = p
			}
			if takePrimary {
				p.primary = &obs[i]
			} else {
				p.secondary = &obs[i]
			}
		}
	}
	index(primary, true)
	index(secondary, false)

	out := make([]HourlyRecord, 0, len(pairs))
	for _, p := range pairs {
		if rec, ok := project(p); ok {
			out = append(out, rec)
		}
	}

	sortHourly(out)
	return out
}

// project maps one classified key to zero or one output record. This is the
// whole precedence rule: a total function over the four merge cases.
func project(p *mergePair) (HourlyRecord, bool) {
	switch p.classify() {
	case caseBoth, casePrimaryOnly:
		return hourlyFrom(*p.primary), true
	case caseSecondaryOnly:
		return hourlyFrom(*p.secondary), true
	default:
		return HourlyRecord{}, false
	}
}

func hourlyFrom(o Observation) HourlyRecord {
	return HourlyRecord{
		Site:          o.Site,
		ParameterCode: o.ParameterCode,
		DateLocal:     o.DateLocal,
		TimeLocal:     o.TimeLocal,
		Measurement:   *o.Measurement,
		Source:        o.Source,
	}
}

func sortHourly(recs []HourlyRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Site != b.Site {
			return lessSite(a.Site, b.Site)
		}
		if a.ParameterCode != b.ParameterCode {
			return a.ParameterCode < b.ParameterCode
		}
		if a.DateLocal != b.DateLocal {
			return a.DateLocal < b.DateLocal
		}
		return a.TimeLocal < b.TimeLocal
	})
}

func lessSite(a, b SiteKey) bool {
	if a.StateCode != b.StateCode {
		return a.StateCode < b.StateCode
	}
	if a.CountyCode != b.CountyCode {
		return a.CountyCode < b.CountyCode
	}
	return a.SiteNumber < b.SiteNumber
}
