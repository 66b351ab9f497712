// Command genmock writes a synthetic raw layer for local development and
// demos: one year of plausible hourly readings for a handful of sites, with
// deliberate gaps and nulls in the primary feed so reconciliation has work
// to do. It uses the real store and domain packages, so the generated files
// are byte-compatible with ingested ones.
//
// Usage:
//
//	go run ./cmd/genmock -data-dir data -year 2024 -params 88101,81102
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/pacificaqd/airquality-etl/internal/adapter/store"
	"github.com/pacificaqd/airquality-etl/internal/domain"
)

var sites = []domain.SiteKey{
	{StateCode: "41", CountyCode: "051", SiteNumber: "0080"},
	{StateCode: "41", CountyCode: "067", SiteNumber: "0111"},
	{StateCode: "53", CountyCode: "011", SiteNumber: "0013"},
}

// baseline concentrations per parameter, scaled by a seasonal curve.
var baselines = map[string]float64{
	"88101": 9.0,   // PM2.5 ug/m3
	"81102": 18.0,  // PM10 ug/m3
	"44201": 0.035, // Ozone ppm
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "data", "root of the data layout")
	year := flag.Int("year", time.Now().Year()-1, "calendar year to generate")
	params := flag.String("params", "88101", "comma-separated AQS parameter codes")
	seed := flag.Int64("seed", 42, "rng seed, fixed for reproducible fixtures")
	flag.Parse()

	st := store.NewFileStore(*dataDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rng := rand.New(rand.NewSource(*seed))

	for _, param := range strings.Split(*params, ",") {
		param = strings.TrimSpace(param)
		base, ok := baselines[param]
		if !ok {
			return fmt.Errorf("no baseline for parameter %s", param)
		}

		primary, secondary := generateYear(rng, param, base, *year)
		if _, err := st.SaveRaw(domain.SourceAQS, param, *year, "mock_aqs", primary); err != nil {
			return err
		}
		if _, err := st.SaveRaw(domain.SourceEnvista, param, *year, "mock_envista", secondary); err != nil {
			return err
		}
		log.Printf("%s %d: %d primary rows, %d secondary rows",
			param, *year, len(primary), len(secondary))
	}
	return nil
}

// generateYear produces a full year of hourly readings. Roughly 6% of
// primary hours are null and another 4% are missing entirely; the secondary
// feed covers about half of those gaps, plus overlapping values that the
// merge must discard.
func generateYear(rng *rand.Rand, param string, base float64, year int) (primary, secondary []domain.Observation) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	for _, site := range sites {
		for ts := start; ts.Before(end); ts = ts.Add(time.Hour) {
			value := sample(rng, base, ts)
			date := ts.Format("2006-01-02")
			hour := ts.Format("15:04")

			roll := rng.Float64()
			switch {
			case roll < 0.04:
				// Primary hour missing entirely.
			case roll < 0.10:
				// Primary reported the hour without a value.
				primary = append(primary, observation(site, param, date, hour, nil, domain.SourceAQS))
			default:
				primary = append(primary, observation(site, param, date, hour, &value, domain.SourceAQS))
			}

			// Secondary coverage is independent of primary gaps.
			if rng.Float64() < 0.55 {
				alt := value * (0.9 + 0.2*rng.Float64())
				secondary = append(secondary, observation(site, param, date, hour, &alt, domain.SourceEnvista))
			}
		}
	}
	return primary, secondary
}

func observation(site domain.SiteKey, param, date, hour string, value *float64, source domain.Source) domain.Observation {
	return domain.Observation{
		Site:          site,
		ParameterCode: param,
		DateLocal:     date,
		TimeLocal:     hour,
		Measurement:   value,
		Source:        source,
	}
}

// sample draws an hourly concentration: seasonal swing, a mild diurnal
// cycle, noise, and a rare smoke-event spike.
func sample(rng *rand.Rand, base float64, ts time.Time) float64 {
	seasonal := 1.0 + 0.4*seasonFactor(ts.Month())
	diurnal := 1.0 + 0.15*diurnalFactor(ts.Hour())
	noise := 0.7 + 0.6*rng.Float64()

	v := base * seasonal * diurnal * noise
	if rng.Float64() < 0.002 {
		v *= 8 + 10*rng.Float64()
	}
	// Particulates report one decimal, gas concentrations three.
	if base < 1 {
		return float64(int(v*1000+0.5)) / 1000
	}
	return float64(int(v*10+0.5)) / 10
}

func seasonFactor(m time.Month) float64 {
	switch m {
	case time.July, time.August, time.September:
		return 1.0 // wildfire season
	case time.December, time.January:
		return 0.6 // woodstove season
	default:
		return 0.0
	}
}

func diurnalFactor(hour int) float64 {
	if hour >= 7 && hour <= 10 || hour >= 17 && hour <= 20 {
		return 1.0
	}
	return 0.0
}
