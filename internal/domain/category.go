package domain

import (
	"sort"
	"strconv"
)

// CategoryUnknown labels AQI values outside 0-500, the out-of-range sentinel
// included. Such days are counted, never silently dropped.
const CategoryUnknown = "Unknown"

// CategoryBand maps an inclusive integer AQI interval to a named category
// and its legend color.
type CategoryBand struct {
	Low   int
	High  int
	Name  string
	Color string
}

// Categories is the standard EPA category scale in ascending order.
var Categories = []CategoryBand{
	{0, 50, "Good", "Green"},
	{51, 100, "Moderate", "Yellow"},
	{101, 150, "Unhealthy for Sensitive Groups", "Orange"},
	{151, 200, "Unhealthy", "Red"},
	{201, 300, "Very Unhealthy", "Purple"},
	{301, 500, "Hazardous", "Maroon"},
}

// Categorize names the category band containing the AQI value.
func Categorize(aqi int) string {
	for _, band := range Categories {
		if aqi >= band.Low && aqi <= band.High {
			return band.Name
		}
	}
	return CategoryUnknown
}

type summaryKey struct {
	parameter string
	category  string
	site      SiteKey
	year      int
}

// AggregateCategories counts days per (parameter, category, site, year)
// across daily AQI records, typically one year spanning several pollutants.
// It is a pure aggregation: input order does not affect the result, and
// feeding the same input twice yields the same counts, not doubled ones.
// The result is sorted for stable output.
func AggregateCategories(dailies []DailyAQI) []CategorySummary {
	counts := make(map[summaryKey]int)
	for _, d := range dailies {
		year, err := strconv.Atoi(yearOf(d.DateLocal))
		if err != nil {
			continue
		}
		k := summaryKey{
			parameter: d.ParameterCode,
			category:  Categorize(d.AQI),
			site:      d.Site,
			year:      year,
		}
		counts[k]++
	}

	out := make([]CategorySummary, 0, len(counts))
	for k, days := range counts {
		out = append(out, CategorySummary{
			ParameterCode: k.parameter,
			Category:      k.category,
			Site:          k.site,
			Year:          k.year,
			Days:          days,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ParameterCode != b.ParameterCode {
			return a.ParameterCode < b.ParameterCode
		}
		if a.Site != b.Site {
			return lessSite(a.Site, b.Site)
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return categoryRank(a.Category) < categoryRank(b.Category)
	})
	return out
}

func yearOf(dateLocal string) string {
	if len(dateLocal) < 4 {
		return ""
	}
	return dateLocal[:4]
}

func categoryRank(name string) int {
	for i, band := range Categories {
		if band.Name == name {
			return i
		}
	}
	return len(Categories)
}
