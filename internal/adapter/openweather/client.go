// Package openweather implements the secondary provider: a coarse,
// spatially averaged air pollution model queried by a single lat/lon point.
// It only fills pollutants the primary station network does not cover.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/klongtoey/airhealth/internal/domain"
)

// ProviderName tags readings and quota rows originating here.
const ProviderName = "openweather"

// Client calls the point air pollution API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a point model client.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.openweathermap.org/data/2.5/air_pollution",
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        ProviderName,
			MaxRequests: 3,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		logger: logger,
	}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// Name returns the provider tag.
func (c *Client) Name() string {
	return ProviderName
}

// FetchPoint fetches the model's concentrations at a coordinate and
// normalizes them to canonical units. The provider reports every pollutant
// in µg/m³, including CO, which is rescaled to mg/m³ during normalization.
func (c *Client) FetchPoint(ctx context.Context, lat, lon float64) (domain.PollutantMap, time.Time, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.4f", lat))
	params.Set("lon", fmt.Sprintf("%.4f", lon))
	params.Set("appid", c.apiKey)

	var payload pointResponse
	if err := c.getJSON(ctx, c.baseURL+"?"+params.Encode(), &payload); err != nil {
		return nil, time.Time{}, err
	}
	if len(payload.List) == 0 {
		return nil, time.Time{}, fmt.Errorf("point model: empty result for (%.4f, %.4f)", lat, lon)
	}

	entry := payload.List[0]
	values := make(domain.PollutantMap)
	for p, raw := range map[domain.Pollutant]*float64{
		domain.PM25: entry.Components.PM25,
		domain.PM10: entry.Components.PM10,
		domain.O3:   entry.Components.O3,
		domain.NO2:  entry.Components.NO2,
		domain.SO2:  entry.Components.SO2,
		domain.CO:   entry.Components.CO,
	} {
		if raw == nil {
			continue
		}
		if v, ok := domain.FromMicrograms(p, *raw); ok {
			values[p] = v
		}
	}

	var observedAt time.Time
	if entry.DT > 0 {
		observedAt = time.Unix(entry.DT, 0).UTC()
	}
	return values, observedAt, nil
}

func (c *Client) getJSON(ctx context.Context, fullURL string, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("point model request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("point model error: status %d: %s", resp.StatusCode, body)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	return err
}

// Provider response types. Component fields are pointers so an absent
// pollutant stays distinct from a measured zero.

type pointResponse struct {
	List []pointEntry `json:"list"`
}

type pointEntry struct {
	DT         int64      `json:"dt"`
	Components components `json:"components"`
}

type components struct {
	CO   *float64 `json:"co"`
	NO2  *float64 `json:"no2"`
	O3   *float64 `json:"o3"`
	SO2  *float64 `json:"so2"`
	PM25 *float64 `json:"pm2_5"`
	PM10 *float64 `json:"pm10"`
}
