package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/observability"
)

var testSite = domain.SiteKey{StateCode: "41", CountyCode: "051", SiteNumber: "0080"}

// fakeExtractor serves canned observations per scope and can fail on demand.
type fakeExtractor struct {
	mu     sync.Mutex
	data   map[Scope][2][]domain.Observation
	failOn map[Scope]error
	calls  []Scope
}

func (f *fakeExtractor) ExtractScope(_ context.Context, scope Scope) ([]domain.Observation, []domain.Observation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, scope)
	f.mu.Unlock()
	if err := f.failOn[scope]; err != nil {
		return nil, nil, err
	}
	pair := f.data[scope]
	return pair[0], pair[1], nil
}

// fakeLoader captures everything the pipeline writes.
type fakeLoader struct {
	mu        sync.Mutex
	hourly    map[Scope][]domain.HourlyRecord
	daily     map[Scope][]domain.DailyAQI
	summaries map[int][]domain.CategorySummary
	failLoad  error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		hourly:    make(map[Scope][]domain.HourlyRecord),
		daily:     make(map[Scope][]domain.DailyAQI),
		summaries: make(map[int][]domain.CategorySummary),
	}
}

func (f *fakeLoader) LoadHourly(_ context.Context, scope Scope, records []domain.HourlyRecord) error {
	if f.failLoad != nil {
		return f.failLoad
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hourly[scope] = records
	return nil
}

func (f *fakeLoader) LoadDaily(_ context.Context, scope Scope, _ domain.Version, records []domain.DailyAQI) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily[scope] = records
	return nil
}

func (f *fakeLoader) LoadSummary(_ context.Context, year int, summaries []domain.CategorySummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries[year] = summaries
	return nil
}

func obsFor(scope Scope, date, hour string, value float64, source domain.Source) domain.Observation {
	return domain.Observation{
		Site:          testSite,
		ParameterCode: scope.ParameterCode,
		DateLocal:     date,
		TimeLocal:     hour,
		Measurement:   &value,
		Source:        source,
	}
}

func newTestPipeline(e Extractor, l Loader, workers int) *Pipeline {
	return New(
		e, l,
		domain.DefaultBreakpoints(),
		domain.VersionCurrent,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
		workers,
	)
}

func TestRun_EndToEnd(t *testing.T) {
	scope := Scope{ParameterCode: "88101", Year: 2024}
	extractor := &fakeExtractor{
		data: map[Scope][2][]domain.Observation{
			scope: {
				{
					obsFor(scope, "2024-03-01", "00:00", 10.0, domain.SourceAQS),
					obsFor(scope, "2024-03-01", "01:00", 14.0, domain.SourceAQS),
				},
				{
					obsFor(scope, "2024-03-01", "00:00", 99.0, domain.SourceEnvista),
					obsFor(scope, "2024-03-01", "02:00", 30.0, domain.SourceEnvista),
				},
			},
		},
	}
	loader := newFakeLoader()
	p := newTestPipeline(extractor, loader, 1)

	require.NoError(t, p.Run(context.Background(), []string{"88101"}, []int{2024}))

	hourly := loader.hourly[scope]
	require.Len(t, hourly, 3)
	assert.Equal(t, 10.0, hourly[0].Measurement)
	assert.Equal(t, domain.SourceEnvista, hourly[2].Source)

	daily := loader.daily[scope]
	require.Len(t, daily, 2)
	assert.Equal(t, 12.0, daily[0].ConcAvg)
	assert.Equal(t, domain.SourceEnvista, daily[1].Source)

	summaries := loader.summaries[2024]
	require.NotEmpty(t, summaries)
	total := 0
	for _, s := range summaries {
		total += s.Days
	}
	assert.Equal(t, 2, total)

	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestRun_ScopeFailureDoesNotStopOthers(t *testing.T) {
	good := Scope{ParameterCode: "88101", Year: 2024}
	bad := Scope{ParameterCode: "81102", Year: 2024}
	extractor := &fakeExtractor{
		data: map[Scope][2][]domain.Observation{
			good: {{obsFor(good, "2024-03-01", "00:00", 10.0, domain.SourceAQS)}, nil},
		},
		failOn: map[Scope]error{bad: errors.New("upstream timeout")},
	}
	loader := newFakeLoader()
	p := newTestPipeline(extractor, loader, 2)

	err := p.Run(context.Background(), []string{"88101", "81102"}, []int{2024})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 scopes failed")

	assert.Len(t, loader.daily[good], 1)

	results := p.Results()
	require.Len(t, results, 2)
	byScope := make(map[Scope]Result, len(results))
	for _, r := range results {
		byScope[r.Scope] = r
	}
	assert.Empty(t, byScope[good].Err)
	assert.Contains(t, byScope[bad].Err, "upstream timeout")
}

func TestRun_EmptyScopeIsNotAFailure(t *testing.T) {
	scope := Scope{ParameterCode: "88101", Year: 2024}
	extractor := &fakeExtractor{data: map[Scope][2][]domain.Observation{}}
	loader := newFakeLoader()
	p := newTestPipeline(extractor, loader, 1)

	require.NoError(t, p.Run(context.Background(), []string{"88101"}, []int{2024}))

	assert.Empty(t, loader.daily[scope])
	assert.Empty(t, loader.summaries)
	// An empty scope completes the run but does not prove the pipeline works.
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestRun_UnknownParameterRecordedAsError(t *testing.T) {
	scope := Scope{ParameterCode: "42101", Year: 2024}
	extractor := &fakeExtractor{
		data: map[Scope][2][]domain.Observation{
			scope: {{obsFor(scope, "2024-03-01", "00:00", 1.0, domain.SourceAQS)}, nil},
		},
	}
	p := newTestPipeline(extractor, newFakeLoader(), 1)

	err := p.Run(context.Background(), []string{"42101"}, []int{2024})
	require.Error(t, err)

	results := p.Results()
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Err, "no breakpoint table")
}

func TestRun_FansOutAllScopes(t *testing.T) {
	extractor := &fakeExtractor{data: map[Scope][2][]domain.Observation{}}
	p := newTestPipeline(extractor, newFakeLoader(), 4)

	require.NoError(t, p.Run(context.Background(), []string{"88101", "81102", "44201"}, []int{2023, 2024}))

	assert.Len(t, extractor.calls, 6)
	assert.Len(t, p.Results(), 6)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := &fakeExtractor{data: map[Scope][2][]domain.Observation{}}
	p := newTestPipeline(extractor, newFakeLoader(), 1)

	err := p.Run(ctx, []string{"88101"}, []int{2024})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_LoadFailureSurfacesScopeError(t *testing.T) {
	scope := Scope{ParameterCode: "88101", Year: 2024}
	extractor := &fakeExtractor{
		data: map[Scope][2][]domain.Observation{
			scope: {{obsFor(scope, "2024-03-01", "00:00", 10.0, domain.SourceAQS)}, nil},
		},
	}
	loader := newFakeLoader()
	loader.failLoad = errors.New("disk full")
	p := newTestPipeline(extractor, loader, 1)

	err := p.Run(context.Background(), []string{"88101"}, []int{2024})
	require.Error(t, err)

	results := p.Results()
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Err, "disk full")
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "88101/2024", fmt.Sprint(Scope{ParameterCode: "88101", Year: 2024}))
}
