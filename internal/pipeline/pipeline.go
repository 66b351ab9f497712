package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/observability"
)

// Scope identifies one unit of pipeline work: a single pollutant over a
// single calendar year.
type Scope struct {
	ParameterCode string
	Year          int
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%d", s.ParameterCode, s.Year)
}

// Extractor reads the raw hourly observations for a scope from both feeds.
// The secondary slice may be empty when no alternate feed covers the scope.
type Extractor interface {
	ExtractScope(ctx context.Context, scope Scope) (primary, secondary []domain.Observation, err error)
}

// Loader persists the products of one scope and the per-year rollup.
type Loader interface {
	LoadHourly(ctx context.Context, scope Scope, records []domain.HourlyRecord) error
	LoadDaily(ctx context.Context, scope Scope, version domain.Version, records []domain.DailyAQI) error
	LoadSummary(ctx context.Context, year int, summaries []domain.CategorySummary) error
}

// Result records the outcome of one processed scope for the run report.
type Result struct {
	Scope      Scope         `json:"scope"`
	HourlyRows int           `json:"hourly_rows"`
	DailyRows  int           `json:"daily_rows"`
	OutOfRange int           `json:"out_of_range"`
	Duration   time.Duration `json:"duration_ns"`
	Err        string        `json:"error,omitempty"`
}

// Pipeline reconciles, derives, and aggregates all configured scopes.
type Pipeline struct {
	extractor Extractor
	loader    Loader
	registry  *domain.BreakpointRegistry
	version   domain.Version
	logger    *slog.Logger
	metrics   *observability.Metrics
	workers   int

	ready atomic.Bool

	mu      sync.Mutex
	results []Result
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, l Loader, registry *domain.BreakpointRegistry, version domain.Version, logger *slog.Logger, metrics *observability.Metrics, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		extractor: e,
		loader:    l,
		registry:  registry,
		version:   version,
		logger:    logger,
		metrics:   metrics,
		workers:   workers,
	}
}

// CheckReadiness returns nil once at least one scope has completed without
// error, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed any scope yet")
	}
	return nil
}

// Results returns a snapshot of the scope outcomes collected so far.
func (p *Pipeline) Results() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	copy(out, p.results)
	return out
}

// Run processes every (pollutant, year) scope, fanning out across the
// configured worker count, then writes one category rollup per year.
// Scope failures are recorded and do not stop the rest of the run; Run
// returns an error if any scope failed.
func (p *Pipeline) Run(ctx context.Context, pollutants []string, years []int) error {
	scopes := buildScopes(pollutants, years)
	p.logger.Info("pipeline started",
		"scopes", len(scopes),
		"workers", p.workers,
		"table_version", string(p.version),
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	work := make(chan Scope)
	dailyByYear := make(map[int][]domain.DailyAQI)
	var dailyMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for scope := range work {
				dailies := p.processScope(ctx, scope)
				if len(dailies) == 0 {
					continue
				}
				dailyMu.Lock()
				dailyByYear[scope.Year] = append(dailyByYear[scope.Year], dailies...)
				dailyMu.Unlock()
			}
		}()
	}

dispatch:
	for _, scope := range scopes {
		select {
		case <-ctx.Done():
			break dispatch
		case work <- scope:
		}
	}
	close(work)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		p.logger.Info("pipeline stopping", "reason", err)
		return err
	}

	if err := p.writeSummaries(ctx, dailyByYear); err != nil {
		return err
	}

	failed := 0
	for _, r := range p.Results() {
		if r.Err != "" {
			failed++
		}
	}
	p.logger.Info("pipeline finished", "scopes", len(scopes), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d scopes failed", failed, len(scopes))
	}
	return nil
}

// processScope runs one extract-reconcile-derive-load cycle and returns the
// daily records for the year rollup. Failures are recorded in the result set.
func (p *Pipeline) processScope(ctx context.Context, scope Scope) []domain.DailyAQI {
	start := time.Now()

	dailies, hourlyRows, outOfRange, err := p.runScope(ctx, scope)

	res := Result{
		Scope:      scope,
		HourlyRows: hourlyRows,
		DailyRows:  len(dailies),
		OutOfRange: outOfRange,
		Duration:   time.Since(start),
	}
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrNoData):
		outcome = "no_data"
		err = nil
	case err != nil:
		outcome = "error"
		res.Err = err.Error()
		p.logger.Error("scope failed", "scope", scope.String(), "error", err)
	}

	p.metrics.ScopesProcessed.WithLabelValues(outcome).Inc()
	p.metrics.ScopeDuration.Observe(res.Duration.Seconds())
	p.metrics.ScopeRows.Observe(float64(hourlyRows))
	if outcome == "ok" {
		p.ready.Store(true)
		p.logger.Info("scope complete",
			"scope", scope.String(),
			"hourly_rows", hourlyRows,
			"daily_rows", len(dailies),
			"out_of_range", outOfRange,
		)
	}

	p.mu.Lock()
	p.results = append(p.results, res)
	p.mu.Unlock()

	if outcome != "ok" {
		return nil
	}
	return dailies
}

func (p *Pipeline) runScope(ctx context.Context, scope Scope) ([]domain.DailyAQI, int, int, error) {
	primary, secondary, err := p.extractor.ExtractScope(ctx, scope)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("extract %s: %w", scope, err)
	}

	table, err := p.registry.Effective(scope.ParameterCode, p.version)
	if err != nil {
		return nil, 0, 0, err
	}

	hourly := domain.Reconcile(primary, secondary)
	if dropped := countDropped(primary) + countDropped(secondary); dropped > 0 {
		p.metrics.RowsDropped.Add(float64(dropped))
	}
	for _, h := range hourly {
		p.metrics.HourlyReconciled.WithLabelValues(string(h.Source)).Inc()
	}

	if err := p.loader.LoadHourly(ctx, scope, hourly); err != nil {
		return nil, len(hourly), 0, fmt.Errorf("load hourly %s: %w", scope, err)
	}

	dailies, err := domain.DeriveDailyAQI(hourly, table)
	if err != nil {
		return nil, len(hourly), 0, err
	}
	outOfRange := 0
	for _, d := range dailies {
		if d.AQI == domain.AQIOutOfRange {
			outOfRange++
		}
	}
	p.metrics.DailyRecords.Add(float64(len(dailies)))
	if outOfRange > 0 {
		p.metrics.AQIOutOfRange.Add(float64(outOfRange))
	}

	if err := p.loader.LoadDaily(ctx, scope, table.Version, dailies); err != nil {
		return nil, len(hourly), outOfRange, fmt.Errorf("load daily %s: %w", scope, err)
	}

	return dailies, len(hourly), outOfRange, nil
}

func (p *Pipeline) writeSummaries(ctx context.Context, dailyByYear map[int][]domain.DailyAQI) error {
	years := make([]int, 0, len(dailyByYear))
	for y := range dailyByYear {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		summaries := domain.AggregateCategories(dailyByYear[year])
		if err := p.loader.LoadSummary(ctx, year, summaries); err != nil {
			return fmt.Errorf("load summary %d: %w", year, err)
		}
		p.logger.Info("category summary written", "year", year, "rows", len(summaries))
	}
	return nil
}

func buildScopes(pollutants []string, years []int) []Scope {
	scopes := make([]Scope, 0, len(pollutants)*len(years))
	for _, param := range pollutants {
		for _, year := range years {
			scopes = append(scopes, Scope{ParameterCode: param, Year: year})
		}
	}
	return scopes
}

// countDropped counts input rows that cannot survive reconciliation because
// the measurement is null or the identifying fields are malformed.
func countDropped(obs []domain.Observation) int {
	n := 0
	for _, o := range obs {
		if !o.Usable() {
			n++
		}
	}
	return n
}
