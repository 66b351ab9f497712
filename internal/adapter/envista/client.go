// Package envista fetches near-real-time hourly readings from an Envista
// air monitoring network API. Envista rows are normalized into the same
// shape as the certified feed so reconciliation can join them by key.
package envista

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/observability"
)

const maxRetries = 3

// parameterCodes maps Envista channel parameter names onto AQS parameter
// codes so both feeds key identically.
var parameterCodes = map[string]string{
	"pm2.5":            "88101",
	"pm10":             "81102",
	"ozone":            "44201",
	"carbon monoxide":  "42101",
	"sulfur dioxide":   "42401",
	"nitrogen dioxide": "42602",
	"black carbon":     "88305",
	"elemental carbon": "88306",
	"organic carbon":   "88307",
}

// MapParameter resolves an Envista channel parameter name to an AQS code.
// Unmapped names pass through unchanged so unexpected channels stay visible
// downstream instead of vanishing.
func MapParameter(name string) string {
	lower := strings.ToLower(name)
	for envistaName, code := range parameterCodes {
		if strings.Contains(lower, envistaName) {
			return code
		}
	}
	return name
}

// MetadataFetcher resolves a station ID to its metadata. Satisfied by
// Client and by CachedMetadata.
type MetadataFetcher interface {
	StationMetadata(ctx context.Context, stationID string) (StationMetadata, error)
}

// Client talks to the Envista REST API. Authentication is bearer token when
// an API key is set, HTTP basic otherwise.
type Client struct {
	baseURL    string
	apiKey     string
	username   string
	password   string
	delay      time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics

	retryBase   time.Duration
	lastRequest time.Time
}

// NewClient creates an Envista API client.
func NewClient(baseURL, apiKey, username, password string, delay, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		username: username,
		password: password,
		delay:    delay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:    logger,
		metrics:   metrics,
		retryBase: time.Second,
	}
}

// Station is one entry from the station listing.
type Station struct {
	StationID string `json:"station_id"`
	Name      string `json:"name"`
}

// Channel is one monitor on a station.
type Channel struct {
	ChannelID string `json:"channel_id"`
	Parameter string `json:"parameter"`
}

// StationMetadata carries the AQS-style site identity and the station's
// monitor channels.
type StationMetadata struct {
	StationID  string    `json:"station_id"`
	StateCode  string    `json:"state_code"`
	CountyCode string    `json:"county_code"`
	SiteNumber string    `json:"site_number"`
	Channels   []Channel `json:"channels"`
}

// Stations lists all stations visible to the credentials.
func (c *Client) Stations(ctx context.Context) ([]Station, error) {
	var stations []Station
	if err := c.getJSON(ctx, "/v1/envista/stations", nil, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// StationMetadata returns site identity and channels for one station.
func (c *Client) StationMetadata(ctx context.Context, stationID string) (StationMetadata, error) {
	var meta StationMetadata
	if err := c.getJSON(ctx, "/v1/envista/stations/"+url.PathEscape(stationID), nil, &meta); err != nil {
		return StationMetadata{}, err
	}
	return meta, nil
}

// FetchHourly downloads hourly readings for one station channel over an
// inclusive date range and normalizes them into observations.
func (c *Client) FetchHourly(ctx context.Context, meta StationMetadata, channel Channel, start, end time.Time) ([]domain.Observation, error) {
	params := url.Values{
		"from":     {start.Format("2006-01-02")},
		"to":       {end.Format("2006-01-02")},
		"timebase": {"60"},
	}
	endpoint := fmt.Sprintf("/v1/envista/stations/%s/data/%s",
		url.PathEscape(meta.StationID), url.PathEscape(channel.ChannelID))

	var points []dataPoint
	if err := c.getJSON(ctx, endpoint, params, &points); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		c.metrics.FetchRequests.WithLabelValues("envista", "empty").Inc()
		return nil, nil
	}

	site := domain.SiteKey{
		StateCode:  meta.StateCode,
		CountyCode: meta.CountyCode,
		SiteNumber: meta.SiteNumber,
	}
	code := MapParameter(channel.Parameter)

	obs := make([]domain.Observation, 0, len(points))
	for _, pt := range points {
		date, hour, ok := splitTimestamp(pt.Datetime)
		if !ok {
			c.logger.Warn("envista timestamp unparseable, skipping",
				"station", meta.StationID, "channel", channel.ChannelID, "datetime", pt.Datetime)
			continue
		}
		obs = append(obs, domain.Observation{
			Site:          site,
			ParameterCode: code,
			DateLocal:     date,
			TimeLocal:     hour,
			Measurement:   pt.measurement(),
			Source:        domain.SourceEnvista,
		})
	}
	return obs, nil
}

// FetchPollutant walks the given stations and downloads every channel that
// maps to the requested AQS parameter code. Station failures are logged and
// skipped so one offline station cannot sink the whole secondary feed.
func (c *Client) FetchPollutant(ctx context.Context, fetcher MetadataFetcher, parameterCode string, start, end time.Time, stationIDs []string) ([]domain.Observation, error) {
	if len(stationIDs) == 0 {
		stations, err := c.Stations(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stations: %w", err)
		}
		for _, s := range stations {
			stationIDs = append(stationIDs, s.StationID)
		}
	}

	var all []domain.Observation
	for _, id := range stationIDs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		meta, err := fetcher.StationMetadata(ctx, id)
		if err != nil {
			c.logger.Warn("envista station metadata failed, skipping",
				"station", id, "error", err)
			continue
		}
		for _, ch := range meta.Channels {
			if MapParameter(ch.Parameter) != parameterCode {
				continue
			}
			obs, err := c.FetchHourly(ctx, meta, ch, start, end)
			if err != nil {
				c.logger.Warn("envista channel fetch failed, skipping",
					"station", id, "channel", ch.ChannelID, "error", err)
				continue
			}
			all = append(all, obs...)
		}
	}
	c.logger.Info("envista pollutant fetched",
		"param", parameterCode, "stations", len(stationIDs), "rows", len(all))
	return all, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if !c.politeWait(ctx) {
			return ctx.Err()
		}
		if err = c.doRequest(ctx, fullURL, out); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("envista request failed",
			"attempt", attempt, "endpoint", endpoint, "error", err)
		if attempt < maxRetries {
			if !sleepWithContext(ctx, c.retryBase<<(attempt-1)) {
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("envista fetch %s: %w", endpoint, err)
}

func (c *Client) doRequest(ctx context.Context, fullURL string, out any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("envista", "error").Inc()
		return fmt.Errorf("envista request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.FetchDuration.WithLabelValues("envista").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchRequests.WithLabelValues("envista", "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("envista API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.FetchRequests.WithLabelValues("envista", "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	c.metrics.FetchRequests.WithLabelValues("envista", "success").Inc()
	return nil
}

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

// splitTimestamp converts an Envista datetime into the feed's local date
// and top-of-hour strings.
func splitTimestamp(raw string) (date, hour string, ok bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format("2006-01-02"), ts.Format("15:04"), true
		}
	}
	return "", "", false
}

type dataPoint struct {
	Datetime string   `json:"datetime"`
	Value    *float64 `json:"value"`
	Valid    *bool    `json:"valid"`
}

// measurement returns the reading's value, or nil when the instrument
// flagged it invalid. A point with no valid flag is taken at face value.
func (p dataPoint) measurement() *float64 {
	if p.Valid != nil && !*p.Valid {
		return nil
	}
	return p.Value
}
