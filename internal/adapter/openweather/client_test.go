package openweather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klongtoey/airhealth/internal/domain"
)

const testAPIKey = "test-key"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	c := NewClient(testAPIKey, 5*time.Second, discardLogger())
	c.SetBaseURL(baseURL)
	return c
}

func TestClient_FetchPoint_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "13.7622", r.URL.Query().Get("lat"))
		assert.Equal(t, "100.5504", r.URL.Query().Get("lon"))
		assert.Equal(t, testAPIKey, r.URL.Query().Get("appid"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"list": [{
				"dt": 1773036000,
				"components": {
					"co": 1145.0,
					"no2": 18.8,
					"o3": 90.0,
					"pm2_5": 35.5,
					"pm10": 0.0
				}
			}]
		}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	values, observedAt, err := c.FetchPoint(context.Background(), 13.7622, 100.5504)
	require.NoError(t, err)

	// CO arrives in µg/m³ and is stored in mg/m³.
	co, ok := values.Get(domain.CO)
	require.True(t, ok)
	assert.InDelta(t, 1.145, co, 1e-9)

	no2, ok := values.Get(domain.NO2)
	require.True(t, ok)
	assert.Equal(t, 18.8, no2)

	pm25, ok := values.Get(domain.PM25)
	require.True(t, ok)
	assert.Equal(t, 35.5, pm25)

	// A reported zero is a measurement, not a gap.
	pm10, ok := values.Get(domain.PM10)
	require.True(t, ok)
	assert.Equal(t, 0.0, pm10)

	// An omitted component stays unavailable.
	_, ok = values.Get(domain.SO2)
	assert.False(t, ok)

	assert.Equal(t, time.Unix(1773036000, 0).UTC(), observedAt)
}

func TestClient_FetchPoint_MissingTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"list":[{"components":{"o3":80.0}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	values, observedAt, err := c.FetchPoint(context.Background(), 13.75, 100.5)
	require.NoError(t, err)

	assert.True(t, observedAt.IsZero())
	o3, ok := values.Get(domain.O3)
	require.True(t, ok)
	assert.Equal(t, 80.0, o3)
}

func TestClient_FetchPoint_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"list":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, _, err := c.FetchPoint(context.Background(), 13.75, 100.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty result")
}

func TestClient_FetchPoint_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, _, err := c.FetchPoint(context.Background(), 13.75, 100.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
