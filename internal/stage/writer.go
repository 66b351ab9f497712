// Package stage projects transform-layer outputs into the flat fact and
// dimension tables the district's dashboards import. Tables live under
// <root>/stage/ as zipped CSV files.
package stage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pacificaqd/airquality-etl/internal/adapter/store"
	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/pipeline"
)

// pollutantNames is the dimension crosswalk from AQS parameter codes to
// display names and units.
var pollutantNames = []struct {
	Code  string
	Name  string
	Units string
}{
	{"88101", "PM2.5 - Local Conditions", "ug/m3"},
	{"81102", "PM10 Total 0-10um STP", "ug/m3"},
	{"44201", "Ozone", "ppm"},
	{"42101", "Carbon monoxide", "ppm"},
	{"42401", "Sulfur dioxide", "ppb"},
	{"42602", "Nitrogen dioxide (NO2)", "ppb"},
	{"88305", "Black Carbon", "ug/m3"},
	{"88306", "Elemental Carbon", "ug/m3"},
	{"88307", "Organic Carbon", "ug/m3"},
}

// hourlyTables names the per-pollutant hourly fact tables. Pollutants not
// listed here pool into fctOtherPollutantsHourly.
var hourlyTables = map[string]string{
	"88101": "fctPM25Hourly",
	"81102": "fctPM10Hourly",
	"44201": "fctO3Hourly",
}

// Writer stages fact and dimension tables from the transform layer.
type Writer struct {
	root   string
	store  *store.FileStore
	logger *slog.Logger
}

// NewWriter creates a stage writer over the same data root as the store.
func NewWriter(dataDir string, st *store.FileStore, logger *slog.Logger) *Writer {
	return &Writer{root: dataDir, store: st, logger: logger}
}

// WriteAQIDaily stages fctAQIDaily for one scope from the daily transform
// layer. Output: stage/fctAQIDaily/<param>_<year>.csv.zip.
func (w *Writer) WriteAQIDaily(scope pipeline.Scope, version domain.Version) (string, error) {
	records, err := w.store.ReadDaily(scope, version)
	if err != nil {
		return "", fmt.Errorf("stage fctAQIDaily %s: %w", scope, err)
	}

	header := []string{
		"state_code", "county_code", "site_number",
		"date", "aqi", "conc_avg", "category", "data_source",
	}
	rows := make([][]string, 0, len(records))
	for _, d := range records {
		rows = append(rows, []string{
			d.Site.StateCode, d.Site.CountyCode, d.Site.SiteNumber,
			d.DateLocal, strconv.Itoa(d.AQI),
			strconv.FormatFloat(d.ConcAvg, 'g', -1, 64),
			domain.Categorize(d.AQI), string(d.Source),
		})
	}

	name := scope.ParameterCode + "_" + strconv.Itoa(scope.Year)
	path := filepath.Join(w.root, "stage", "fctAQIDaily", name+".csv.zip")
	if err := store.WriteZipCSV(path, name+".csv", header, rows); err != nil {
		return "", err
	}
	w.logger.Info("staged fctAQIDaily", "scope", scope.String(), "rows", len(rows))
	return path, nil
}

// WriteAQICategory stages fctAQICategory for one year: days per AQI
// category by site. Output: stage/fctAQICategory/<year>.csv.zip.
func (w *Writer) WriteAQICategory(year int) (string, error) {
	summaries, err := w.store.ReadSummary(year)
	if err != nil {
		return "", fmt.Errorf("stage fctAQICategory %d: %w", year, err)
	}

	header := []string{
		"parameter_code", "category",
		"state_code", "county_code", "site_number",
		"year", "days",
	}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.ParameterCode, s.Category,
			s.Site.StateCode, s.Site.CountyCode, s.Site.SiteNumber,
			strconv.Itoa(s.Year), strconv.Itoa(s.Days),
		})
	}

	name := strconv.Itoa(year)
	path := filepath.Join(w.root, "stage", "fctAQICategory", name+".csv.zip")
	if err := store.WriteZipCSV(path, name+".csv", header, rows); err != nil {
		return "", err
	}
	w.logger.Info("staged fctAQICategory", "year", year, "rows", len(rows))
	return path, nil
}

// WriteHourlyFacts stages the reconciled hourly layer of one year as
// pass-through fact tables: the named pollutants each get their own table,
// everything else pools into fctOtherPollutantsHourly. Pollutants with no
// hourly layer yet are skipped. Output: stage/<table>/<year>.csv.zip.
func (w *Writer) WriteHourlyFacts(year int, params []string) error {
	header := []string{
		"state_code", "county_code", "site_number",
		"parameter_code", "date_local", "time_local",
		"sample_measurement", "data_source",
	}
	var other [][]string

	for _, param := range params {
		records, err := w.store.ReadHourly(pipeline.Scope{ParameterCode: param, Year: year})
		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("no hourly layer, skipping fact table", "param", param, "year", year)
			continue
		}
		if err != nil {
			return fmt.Errorf("stage hourly facts %s/%d: %w", param, year, err)
		}

		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				r.Site.StateCode, r.Site.CountyCode, r.Site.SiteNumber,
				r.ParameterCode, r.DateLocal, r.TimeLocal,
				strconv.FormatFloat(r.Measurement, 'g', -1, 64), string(r.Source),
			})
		}

		table, ok := hourlyTables[param]
		if !ok {
			other = append(other, rows...)
			continue
		}
		name := strconv.Itoa(year)
		path := filepath.Join(w.root, "stage", table, name+".csv.zip")
		if err := store.WriteZipCSV(path, name+".csv", header, rows); err != nil {
			return err
		}
		w.logger.Info("staged hourly facts", "table", table, "year", year, "rows", len(rows))
	}

	if len(other) > 0 {
		name := strconv.Itoa(year)
		path := filepath.Join(w.root, "stage", "fctOtherPollutantsHourly", name+".csv.zip")
		if err := store.WriteZipCSV(path, name+".csv", header, other); err != nil {
			return err
		}
		w.logger.Info("staged hourly facts", "table", "fctOtherPollutantsHourly", "year", year, "rows", len(other))
	}
	return nil
}

// WriteMonitorCoverage stages the distinct site x pollutant x date
// combinations present in the hourly layer, so dashboards can distinguish
// "no exceedance" from "no monitor". Output: stage/monitor_coverage.csv.zip.
func (w *Writer) WriteMonitorCoverage(years []int, params []string) (string, error) {
	header := []string{
		"pollutant", "site_number", "state_code", "county_code",
		"date", "available",
	}

	type coverageKey struct {
		param string
		site  domain.SiteKey
		date  string
	}
	seen := make(map[coverageKey]bool)
	var rows [][]string

	for _, param := range params {
		for _, year := range years {
			records, err := w.store.ReadHourly(pipeline.Scope{ParameterCode: param, Year: year})
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("stage monitor coverage %s/%d: %w", param, year, err)
			}
			for _, r := range records {
				k := coverageKey{param: param, site: r.Site, date: r.DateLocal}
				if seen[k] {
					continue
				}
				seen[k] = true
				rows = append(rows, []string{
					param, r.Site.SiteNumber, r.Site.StateCode, r.Site.CountyCode,
					r.DateLocal, "1",
				})
			}
		}
	}

	path := filepath.Join(w.root, "stage", "monitor_coverage.csv.zip")
	if err := store.WriteZipCSV(path, "monitor_coverage.csv", header, rows); err != nil {
		return "", err
	}
	w.logger.Info("staged monitor_coverage", "rows", len(rows))
	return path, nil
}

// WriteDimPollutant stages the static pollutant crosswalk.
// Output: stage/dimPollutant.csv.zip.
func (w *Writer) WriteDimPollutant() (string, error) {
	header := []string{"parameter_code", "parameter_name", "units"}
	rows := make([][]string, 0, len(pollutantNames))
	for _, p := range pollutantNames {
		rows = append(rows, []string{p.Code, p.Name, p.Units})
	}

	path := filepath.Join(w.root, "stage", "dimPollutant.csv.zip")
	if err := store.WriteZipCSV(path, "dimPollutant.csv", header, rows); err != nil {
		return "", err
	}
	w.logger.Info("staged dimPollutant", "rows", len(rows))
	return path, nil
}

// WriteDimAQI stages the breakpoint bands of every registered table plus
// the category bands with display colors, so dashboards can render scales
// without hardcoding them. Output: stage/dimAQI.csv.zip.
func (w *Writer) WriteDimAQI(registry *domain.BreakpointRegistry) (string, error) {
	header := []string{
		"parameter_code", "version",
		"conc_low", "conc_high", "aqi_low", "aqi_high",
	}
	params := registry.Parameters()
	sort.Strings(params)

	var rows [][]string
	for _, code := range params {
		tables := registry.Versions(code)
		sort.Slice(tables, func(i, j int) bool { return tables[i].Version < tables[j].Version })
		for _, table := range tables {
			for _, b := range table.Bands {
				rows = append(rows, []string{
					table.ParameterCode, string(table.Version),
					strconv.FormatFloat(b.ConcLow, 'g', -1, 64),
					strconv.FormatFloat(b.ConcHigh, 'g', -1, 64),
					strconv.Itoa(b.AQILow), strconv.Itoa(b.AQIHigh),
				})
			}
		}
	}

	path := filepath.Join(w.root, "stage", "dimAQI.csv.zip")
	if err := store.WriteZipCSV(path, "dimAQI.csv", header, rows); err != nil {
		return "", err
	}

	catHeader := []string{"category", "aqi_low", "aqi_high", "color"}
	catRows := make([][]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		catRows = append(catRows, []string{
			c.Name, strconv.Itoa(c.Low), strconv.Itoa(c.High), c.Color,
		})
	}
	catPath := filepath.Join(w.root, "stage", "dimAQICategory.csv.zip")
	if err := store.WriteZipCSV(catPath, "dimAQICategory.csv", catHeader, catRows); err != nil {
		return "", err
	}

	w.logger.Info("staged dimAQI", "band_rows", len(rows), "categories", len(catRows))
	return path, nil
}
