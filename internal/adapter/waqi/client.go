// Package waqi implements the primary provider: a dense station network
// that reports per-pollutant values on a US-AQI-style index scale.
package waqi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/klongtoey/airhealth/internal/domain"
)

// ProviderName tags readings and quota rows originating here.
const ProviderName = "waqi"

// Client calls the station network API. All responses go through a
// fail-closed parser: any unexpected shape yields unavailable values, not
// an aborted cycle.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a station network client. The circuit breaker trips
// after repeated failures so a provider outage degrades cycles quickly
// instead of burning the whole fetch window on timeouts.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.waqi.info",
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

// FetchStation fetches the station feed nearest to the location's
// coordinates and inverts its index-scale values into canonical
// concentrations. Pollutants the station does not report, or whose index
// falls outside the published bands, are simply absent from the result.
func (c *Client) FetchStation(ctx context.Context, loc domain.Location) (domain.PollutantMap, time.Time, error) {
	u := fmt.Sprintf("%s/feed/geo:%.4f;%.4f/?token=%s",
		c.baseURL, loc.Lat, loc.Lon, url.QueryEscape(c.token))

	var payload stationResponse
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, time.Time{}, err
	}
	if payload.Status != "ok" {
		return nil, time.Time{}, fmt.Errorf("station feed for %s: status %q", loc.ID, payload.Status)
	}

	values := make(domain.PollutantMap)
	for code, cell := range payload.Data.IAQI {
		p := pollutantCode(code)
		if p == "" {
			continue
		}
		index, ok := cell.value()
		if !ok {
			continue
		}
		if v, ok := domain.FromIndex(p, index); ok {
			values[p] = v
		}
	}

	observedAt := payload.Data.Time.parsed()
	return values, observedAt, nil
}

// BoundsStation is one station returned by a bounding-box query.
type BoundsStation struct {
	UID  int
	Name string
	Lat  float64
	Lon  float64
	AQI  float64
	OK   bool // false when the station reported a non-numeric AQI
}

// FetchBounds lists the network's stations inside a bounding box with their
// composite AQI. Used for coverage checks, not for the collection cycle.
func (c *Client) FetchBounds(ctx context.Context, minLat, minLon, maxLat, maxLon float64) ([]BoundsStation, error) {
	u := fmt.Sprintf("%s/map/bounds/?latlng=%.4f,%.4f,%.4f,%.4f&token=%s",
		c.baseURL, minLat, minLon, maxLat, maxLon, url.QueryEscape(c.token))

	var payload boundsResponse
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("bounds query: status %q", payload.Status)
	}

	stations := make([]BoundsStation, 0, len(payload.Data))
	for _, d := range payload.Data {
		st := BoundsStation{UID: d.UID, Name: d.Station.Name, Lat: d.Lat, Lon: d.Lon}
		// The bounds endpoint encodes AQI as a string, sometimes "-" for
		// stations that are currently down.
		if v, err := strconv.ParseFloat(d.AQI, 64); err == nil {
			st.AQI = v
			st.OK = true
		}
		stations = append(stations, st)
	}
	return stations, nil
}

func (c *Client) getJSON(ctx context.Context, fullURL string, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("station network request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("station network error: status %d: %s", resp.StatusCode, body)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	return err
}

// pollutantCode maps the provider's iaqi keys onto tracked pollutants.
// Unknown keys (dew, humidity, pressure, ...) map to "".
func pollutantCode(code string) domain.Pollutant {
	switch code {
	case "pm25":
		return domain.PM25
	case "pm10":
		return domain.PM10
	case "o3":
		return domain.O3
	case "no2":
		return domain.NO2
	case "so2":
		return domain.SO2
	case "co":
		return domain.CO
	}
	return ""
}

// Provider response types. Numeric fields arrive as numbers or strings
// depending on the station, so each is parsed defensively.

type stationResponse struct {
	Status string      `json:"status"`
	Data   stationData `json:"data"`
}

type stationData struct {
	IAQI map[string]iaqiCell `json:"iaqi"`
	Time stationTime         `json:"time"`
}

type iaqiCell struct {
	V json.RawMessage `json:"v"`
}

// value parses the index cell, tolerating both numeric and quoted-numeric
// encodings. Anything else is unavailable.
func (c iaqiCell) value() (float64, bool) {
	var f float64
	if err := json.Unmarshal(c.V, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(c.V, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

type stationTime struct {
	ISO string `json:"iso"`
}

// parsed returns the station's observation instant, or the zero time when
// the field is absent or malformed; callers substitute the cycle clock.
func (t stationTime) parsed() time.Time {
	ts, err := time.Parse(time.RFC3339, t.ISO)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

type boundsResponse struct {
	Status string         `json:"status"`
	Data   []boundsRecord `json:"data"`
}

type boundsRecord struct {
	UID     int     `json:"uid"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	AQI     string  `json:"aqi"`
	Station struct {
		Name string `json:"name"`
	} `json:"station"`
}
