// Package aqs fetches hourly sample data from the EPA Air Quality System API.
//
// AQS asks integrators to stay well under 60 requests per minute, so the
// client inserts a polite delay between consecutive requests and retries
// transient failures with exponential backoff.
package aqs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/observability"
)

const maxRetries = 3

// Client downloads hourly samples from the sampleData/byState endpoint.
type Client struct {
	email      string
	key        string
	baseURL    string
	delay      time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics

	retryBase   time.Duration
	lastRequest time.Time
}

// NewClient creates an AQS API client. The delay is the minimum spacing
// between consecutive requests.
func NewClient(baseURL, email, key string, delay, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		email:   email,
		key:     key,
		baseURL: baseURL,
		delay:   delay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:    logger,
		metrics:   metrics,
		retryBase: time.Second,
	}
}

// FetchDay downloads all hourly samples for one pollutant, one state, and
// one calendar day. An empty slice with a nil error means the endpoint had
// no rows, which is common for sparse monitors.
func (c *Client) FetchDay(ctx context.Context, parameterCode string, day time.Time, stateFIPS string) ([]domain.Observation, error) {
	yyyymmdd := day.Format("20060102")
	params := url.Values{
		"email": {c.email},
		"key":   {c.key},
		"param": {parameterCode},
		"bdate": {yyyymmdd},
		"edate": {yyyymmdd},
		"state": {padState(stateFIPS)},
	}
	fullURL := c.baseURL + "/sampleData/byState?" + params.Encode()

	var rows []sampleRow
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if !c.politeWait(ctx) {
			return nil, ctx.Err()
		}
		rows, err = c.doRequest(ctx, fullURL)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("aqs request failed",
			"attempt", attempt,
			"param", parameterCode,
			"state", stateFIPS,
			"date", day.Format("2006-01-02"),
			"error", err,
		)
		if attempt < maxRetries {
			if !sleepWithContext(ctx, c.retryBase<<(attempt-1)) {
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("aqs fetch param %s state %s: %w", parameterCode, stateFIPS, err)
	}

	obs := make([]domain.Observation, 0, len(rows))
	for _, row := range rows {
		obs = append(obs, row.toObservation())
	}
	if len(obs) == 0 {
		c.metrics.FetchRequests.WithLabelValues("aqs", "empty").Inc()
	}
	return obs, nil
}

// FetchRange downloads every day in [start, end] for all given states.
func (c *Client) FetchRange(ctx context.Context, parameterCode string, start, end time.Time, states []string) ([]domain.Observation, error) {
	var all []domain.Observation
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, state := range states {
			obs, err := c.FetchDay(ctx, parameterCode, day, state)
			if err != nil {
				return nil, err
			}
			all = append(all, obs...)
		}
	}
	c.logger.Info("aqs range fetched",
		"param", parameterCode,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"states", len(states),
		"rows", len(all),
	)
	return all, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]sampleRow, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("aqs", "error").Inc()
		return nil, fmt.Errorf("aqs request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.FetchDuration.WithLabelValues("aqs").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchRequests.WithLabelValues("aqs", "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("aqs API error: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.FetchRequests.WithLabelValues("aqs", "error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.metrics.FetchRequests.WithLabelValues("aqs", "success").Inc()
	return payload.Data, nil
}

// politeWait enforces the request delay. Returns false on cancellation.
func (c *Client) politeWait(ctx context.Context) bool {
	if c.delay <= 0 {
		return true
	}
	if elapsed := time.Since(c.lastRequest); elapsed < c.delay {
		if !sleepWithContext(ctx, c.delay-elapsed) {
			return false
		}
	}
	c.lastRequest = time.Now()
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func padState(fips string) string {
	if len(fips) == 1 {
		return "0" + fips
	}
	return fips
}

// AQS API response types. The Header block carries request status; Data
// carries one row per monitor-hour.

type response struct {
	Header []header    `json:"Header"`
	Data   []sampleRow `json:"Data"`
}

type header struct {
	Status string `json:"status"`
}

type sampleRow struct {
	StateCode         string   `json:"state_code"`
	CountyCode        string   `json:"county_code"`
	SiteNumber        string   `json:"site_number"`
	ParameterCode     string   `json:"parameter_code"`
	DateLocal         string   `json:"date_local"`
	TimeLocal         string   `json:"time_local"`
	SampleMeasurement *float64 `json:"sample_measurement"`
}

func (r sampleRow) toObservation() domain.Observation {
	return domain.Observation{
		Site: domain.SiteKey{
			StateCode:  r.StateCode,
			CountyCode: r.CountyCode,
			SiteNumber: r.SiteNumber,
		},
		ParameterCode: r.ParameterCode,
		DateLocal:     r.DateLocal,
		TimeLocal:     r.TimeLocal,
		Measurement:   r.SampleMeasurement,
		Source:        domain.SourceAQS,
	}
}
