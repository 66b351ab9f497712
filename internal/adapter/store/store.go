// Package store persists pipeline data as zipped CSV files on local disk.
//
// Layout under the root directory:
//
//	raw/<aqs|envista>/<param>/<year>/<name>.csv.zip
//	transform/hourly/<param>/<year>.csv.zip
//	transform/daily_aqi/<version>/<param>/<year>.csv.zip
//	transform/category/<year>.csv.zip
//
// A null measurement is an empty CSV cell, never "0".
package store

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/pipeline"
)

var observationHeader = []string{
	"state_code", "county_code", "site_number",
	"parameter_code", "date_local", "time_local",
	"sample_measurement", "data_source",
}

var dailyHeader = []string{
	"state_code", "county_code", "site_number",
	"parameter_code", "date_local",
	"conc_avg", "aqi", "data_source", "generated_at",
}

var summaryHeader = []string{
	"parameter_code", "category",
	"state_code", "county_code", "site_number",
	"year", "days",
}

// FileStore reads raw observations and writes transform products. It
// implements the pipeline Extractor and Loader ports.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	return &FileStore{root: dir, logger: logger}
}

// SaveRaw writes one batch of fetched observations into the raw layer.
// Existing files are left alone so re-running ingestion skips completed days.
func (s *FileStore) SaveRaw(source domain.Source, parameterCode string, year int, name string, obs []domain.Observation) (string, error) {
	dir := filepath.Join(s.root, "raw", sourceDir(source), parameterCode, strconv.Itoa(year))
	path := filepath.Join(dir, name+".csv.zip")

	if _, err := os.Stat(path); err == nil {
		s.logger.Info("raw file exists, skipping", "path", path)
		return path, nil
	}

	rows := make([][]string, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, observationRow(o))
	}
	if err := WriteZipCSV(path, name+".csv", observationHeader, rows); err != nil {
		return "", err
	}
	s.logger.Info("raw file written", "path", path, "rows", len(rows))
	return path, nil
}

// ExtractScope loads every raw file for the scope from both feed layers.
// A feed directory that does not exist yet is an empty feed, not an error.
func (s *FileStore) ExtractScope(_ context.Context, scope pipeline.Scope) ([]domain.Observation, []domain.Observation, error) {
	primary, err := s.readRawLayer(domain.SourceAQS, scope)
	if err != nil {
		return nil, nil, err
	}
	secondary, err := s.readRawLayer(domain.SourceEnvista, scope)
	if err != nil {
		return nil, nil, err
	}
	return primary, secondary, nil
}

// LoadHourly writes the reconciled hourly layer for one scope.
func (s *FileStore) LoadHourly(_ context.Context, scope pipeline.Scope, records []domain.HourlyRecord) error {
	path := filepath.Join(s.root, "transform", "hourly",
		scope.ParameterCode, strconv.Itoa(scope.Year)+".csv.zip")

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Site.StateCode, r.Site.CountyCode, r.Site.SiteNumber,
			r.ParameterCode, r.DateLocal, r.TimeLocal,
			formatFloat(r.Measurement), string(r.Source),
		})
	}
	return WriteZipCSV(path, strconv.Itoa(scope.Year)+".csv", observationHeader, rows)
}

// LoadDaily writes the daily AQI layer, partitioned by the table version
// that produced it so legacy and current outputs never overwrite each other.
func (s *FileStore) LoadDaily(_ context.Context, scope pipeline.Scope, version domain.Version, records []domain.DailyAQI) error {
	path := filepath.Join(s.root, "transform", "daily_aqi", string(version),
		scope.ParameterCode, strconv.Itoa(scope.Year)+".csv.zip")

	rows := make([][]string, 0, len(records))
	for _, d := range records {
		rows = append(rows, []string{
			d.Site.StateCode, d.Site.CountyCode, d.Site.SiteNumber,
			d.ParameterCode, d.DateLocal,
			formatFloat(d.ConcAvg), strconv.Itoa(d.AQI),
			string(d.Source), d.GeneratedAt.UTC().Format(time.RFC3339),
		})
	}
	return WriteZipCSV(path, strconv.Itoa(scope.Year)+".csv", dailyHeader, rows)
}

// LoadSummary writes the per-year category rollup.
func (s *FileStore) LoadSummary(_ context.Context, year int, summaries []domain.CategorySummary) error {
	path := filepath.Join(s.root, "transform", "category", strconv.Itoa(year)+".csv.zip")

	rows := make([][]string, 0, len(summaries))
	for _, c := range summaries {
		rows = append(rows, []string{
			c.ParameterCode, c.Category,
			c.Site.StateCode, c.Site.CountyCode, c.Site.SiteNumber,
			strconv.Itoa(c.Year), strconv.Itoa(c.Days),
		})
	}
	return WriteZipCSV(path, strconv.Itoa(year)+".csv", summaryHeader, rows)
}

// ReadHourly loads a reconciled hourly layer back, for validation.
func (s *FileStore) ReadHourly(scope pipeline.Scope) ([]domain.HourlyRecord, error) {
	path := filepath.Join(s.root, "transform", "hourly",
		scope.ParameterCode, strconv.Itoa(scope.Year)+".csv.zip")

	rows, err := ReadZipCSV(path)
	if err != nil {
		return nil, err
	}

	out := make([]domain.HourlyRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(observationHeader) {
			continue
		}
		v, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			continue
		}
		out = append(out, domain.HourlyRecord{
			Site:          domain.SiteKey{StateCode: row[0], CountyCode: row[1], SiteNumber: row[2]},
			ParameterCode: row[3],
			DateLocal:     row[4],
			TimeLocal:     row[5],
			Measurement:   v,
			Source:        domain.Source(row[7]),
		})
	}
	return out, nil
}

// ReadDaily loads a daily AQI layer back, for downstream publication.
func (s *FileStore) ReadDaily(scope pipeline.Scope, version domain.Version) ([]domain.DailyAQI, error) {
	path := filepath.Join(s.root, "transform", "daily_aqi", string(version),
		scope.ParameterCode, strconv.Itoa(scope.Year)+".csv.zip")

	rows, err := ReadZipCSV(path)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DailyAQI, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(dailyHeader) {
			continue
		}
		concAvg, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			continue
		}
		aqi, err := strconv.Atoi(row[6])
		if err != nil {
			continue
		}
		generatedAt, _ := time.Parse(time.RFC3339, row[8])
		out = append(out, domain.DailyAQI{
			Site:          domain.SiteKey{StateCode: row[0], CountyCode: row[1], SiteNumber: row[2]},
			ParameterCode: row[3],
			DateLocal:     row[4],
			ConcAvg:       concAvg,
			AQI:           aqi,
			Source:        domain.Source(row[7]),
			GeneratedAt:   generatedAt,
		})
	}
	return out, nil
}

// ReadSummary loads a per-year category rollup back, for staging.
func (s *FileStore) ReadSummary(year int) ([]domain.CategorySummary, error) {
	path := filepath.Join(s.root, "transform", "category", strconv.Itoa(year)+".csv.zip")

	rows, err := ReadZipCSV(path)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CategorySummary, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(summaryHeader) {
			continue
		}
		y, err := strconv.Atoi(row[5])
		if err != nil {
			continue
		}
		days, err := strconv.Atoi(row[6])
		if err != nil {
			continue
		}
		out = append(out, domain.CategorySummary{
			ParameterCode: row[0],
			Category:      row[1],
			Site:          domain.SiteKey{StateCode: row[2], CountyCode: row[3], SiteNumber: row[4]},
			Year:          y,
			Days:          days,
		})
	}
	return out, nil
}

func (s *FileStore) readRawLayer(source domain.Source, scope pipeline.Scope) ([]domain.Observation, error) {
	dir := filepath.Join(s.root, "raw", sourceDir(source),
		scope.ParameterCode, strconv.Itoa(scope.Year))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read raw layer %s: %w", dir, err)
	}

	var all []domain.Observation
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv.zip") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		rows, err := ReadZipCSV(path)
		if err != nil {
			return nil, fmt.Errorf("read raw file %s: %w", path, err)
		}
		for _, row := range rows {
			obs, ok := parseObservationRow(row, source)
			if !ok {
				continue
			}
			all = append(all, obs)
		}
	}
	return all, nil
}

func observationRow(o domain.Observation) []string {
	measurement := ""
	if o.Measurement != nil {
		measurement = formatFloat(*o.Measurement)
	}
	return []string{
		o.Site.StateCode, o.Site.CountyCode, o.Site.SiteNumber,
		o.ParameterCode, o.DateLocal, o.TimeLocal,
		measurement, string(o.Source),
	}
}

func parseObservationRow(row []string, fallback domain.Source) (domain.Observation, bool) {
	if len(row) != len(observationHeader) {
		return domain.Observation{}, false
	}
	obs := domain.Observation{
		Site:          domain.SiteKey{StateCode: row[0], CountyCode: row[1], SiteNumber: row[2]},
		ParameterCode: row[3],
		DateLocal:     row[4],
		TimeLocal:     row[5],
		Source:        fallback,
	}
	if row[7] != "" {
		obs.Source = domain.Source(row[7])
	}
	if row[6] != "" {
		v, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return domain.Observation{}, false
		}
		obs.Measurement = &v
	}
	return obs, true
}

func sourceDir(source domain.Source) string {
	return strings.ToLower(string(source))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteZipCSV writes header and rows as a single CSV entry inside a zip.
// The write goes through a temp file and rename so readers never see a
// half-written archive.
func WriteZipCSV(path, entryName string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.csv.zip")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := func() error {
		zw := zip.NewWriter(tmp)
		entry, err := zw.Create(entryName)
		if err != nil {
			return err
		}
		cw := csv.NewWriter(entry)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		return tmp.Close()
	}(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ReadZipCSV reads all data rows (header excluded) from the first CSV entry
// in a zip archive.
func ReadZipCSV(path string) ([][]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fs.ErrNotExist
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		defer rc.Close()

		cr := csv.NewReader(rc)
		cr.FieldsPerRecord = -1
		records, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(records) <= 1 {
			return nil, nil
		}
		return records[1:], nil
	}
	return nil, fmt.Errorf("no csv entry in %s", path)
}

var _ pipeline.Extractor = (*FileStore)(nil)
var _ pipeline.Loader = (*FileStore)(nil)
