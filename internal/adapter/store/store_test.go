package store

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/pipeline"
)

var testSite = domain.SiteKey{StateCode: "41", CountyCode: "051", SiteNumber: "0080"}

func testStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func obs(date, hour string, value *float64, source domain.Source) domain.Observation {
	return domain.Observation{
		Site:          testSite,
		ParameterCode: "88101",
		DateLocal:     date,
		TimeLocal:     hour,
		Measurement:   value,
		Source:        source,
	}
}

func ptr(v float64) *float64 { return &v }

func TestSaveRawAndExtractScope(t *testing.T) {
	s := testStore(t)
	scope := pipeline.Scope{ParameterCode: "88101", Year: 2024}

	aqsObs := []domain.Observation{
		obs("2024-03-01", "00:00", ptr(8.2), domain.SourceAQS),
		obs("2024-03-01", "01:00", nil, domain.SourceAQS),
	}
	envistaObs := []domain.Observation{
		obs("2024-03-01", "00:00", ptr(9.1), domain.SourceEnvista),
	}

	_, err := s.SaveRaw(domain.SourceAQS, "88101", 2024, "0301_41", aqsObs)
	require.NoError(t, err)
	_, err = s.SaveRaw(domain.SourceEnvista, "88101", 2024, "envista_ST-12", envistaObs)
	require.NoError(t, err)

	primary, secondary, err := s.ExtractScope(context.Background(), scope)
	require.NoError(t, err)

	if diff := cmp.Diff(aqsObs, primary); diff != "" {
		t.Fatalf("primary round trip mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(envistaObs, secondary); diff != "" {
		t.Fatalf("secondary round trip mismatch (-want +got):\n%s", diff)
	}

	// The null hour must come back as nil, not as zero.
	require.Nil(t, primary[1].Measurement)
}

func TestSaveRaw_SkipsExistingFile(t *testing.T) {
	s := testStore(t)

	first := []domain.Observation{obs("2024-03-01", "00:00", ptr(8.2), domain.SourceAQS)}
	path, err := s.SaveRaw(domain.SourceAQS, "88101", 2024, "0301_41", first)
	require.NoError(t, err)

	// A second save with different content must not clobber the original.
	replacement := []domain.Observation{obs("2024-03-01", "00:00", ptr(99.0), domain.SourceAQS)}
	again, err := s.SaveRaw(domain.SourceAQS, "88101", 2024, "0301_41", replacement)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	primary, _, err := s.ExtractScope(context.Background(), pipeline.Scope{ParameterCode: "88101", Year: 2024})
	require.NoError(t, err)
	require.Len(t, primary, 1)
	assert.Equal(t, 8.2, *primary[0].Measurement)
}

func TestExtractScope_MissingLayersAreEmpty(t *testing.T) {
	s := testStore(t)

	primary, secondary, err := s.ExtractScope(context.Background(), pipeline.Scope{ParameterCode: "88101", Year: 1999})
	require.NoError(t, err)
	assert.Empty(t, primary)
	assert.Empty(t, secondary)
}

func TestLoadHourly_WritesTransformLayer(t *testing.T) {
	s := testStore(t)
	scope := pipeline.Scope{ParameterCode: "88101", Year: 2024}

	records := []domain.HourlyRecord{
		{Site: testSite, ParameterCode: "88101", DateLocal: "2024-03-01", TimeLocal: "00:00", Measurement: 8.2, Source: domain.SourceAQS},
		{Site: testSite, ParameterCode: "88101", DateLocal: "2024-03-01", TimeLocal: "01:00", Measurement: 9.1, Source: domain.SourceEnvista},
	}
	require.NoError(t, s.LoadHourly(context.Background(), scope, records))

	rows, err := ReadZipCSV(filepath.Join(s.root, "transform", "hourly", "88101", "2024.csv.zip"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Envista", rows[1][7])

	got, err := s.ReadHourly(scope)
	require.NoError(t, err)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("hourly round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDailyAndReadDaily(t *testing.T) {
	s := testStore(t)
	scope := pipeline.Scope{ParameterCode: "88101", Year: 2024}

	records := []domain.DailyAQI{
		{
			Site: testSite, ParameterCode: "88101", DateLocal: "2024-03-01",
			ConcAvg: 10.5, AQI: 44, Source: domain.SourceAQS,
			GeneratedAt: time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, s.LoadDaily(context.Background(), scope, domain.VersionCurrent, records))

	got, err := s.ReadDaily(scope, domain.VersionCurrent)
	require.NoError(t, err)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("daily round trip mismatch (-want +got):\n%s", diff)
	}

	// The legacy partition stays untouched.
	_, err = s.ReadDaily(scope, domain.VersionLegacy)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadSummary(t *testing.T) {
	s := testStore(t)

	summaries := []domain.CategorySummary{
		{ParameterCode: "88101", Category: "Good", Site: testSite, Year: 2024, Days: 31},
		{ParameterCode: "88101", Category: "Moderate", Site: testSite, Year: 2024, Days: 4},
	}
	require.NoError(t, s.LoadSummary(context.Background(), 2024, summaries))

	rows, err := ReadZipCSV(filepath.Join(s.root, "transform", "category", "2024.csv.zip"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"88101", "Good", "41", "051", "0080", "2024", "31"}, rows[0])
}

func TestExtractScope_MalformedRowsSkipped(t *testing.T) {
	s := testStore(t)

	dir := filepath.Join(s.root, "raw", "aqs", "88101", "2024")
	rows := [][]string{
		{"41", "051", "0080", "88101", "2024-03-01", "00:00", "8.2", "AQS"},
		{"41", "051", "0080", "88101", "2024-03-01", "01:00", "not a number", "AQS"},
		{"short row"},
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, WriteZipCSV(filepath.Join(dir, "0301_41.csv.zip"), "0301_41.csv", observationHeader, rows))

	primary, _, err := s.ExtractScope(context.Background(), pipeline.Scope{ParameterCode: "88101", Year: 2024})
	require.NoError(t, err)
	require.Len(t, primary, 1)
	assert.Equal(t, 8.2, *primary[0].Measurement)
}
