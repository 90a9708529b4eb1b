package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klongtoey/airhealth/internal/domain"
)

func f(v float64) *float64 { return &v }

func testRecord() domain.HealthIndexRecord {
	return domain.HealthIndexRecord{
		LocationID: "bkk-din-daeng",
		Hour:       time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC),
		Value:      1.7,
		Category:   domain.RiskLow,
		Quality:    domain.QualityExcellent,
		Policy:     "reference",
		Inputs:     domain.IndexInputs{PM25: f(35.5), O3: f(90.0)},
		ComputedAt: time.Date(2026, 3, 14, 7, 0, 12, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testRecord())
	require.NoError(t, err)

	assert.Equal(t, []byte("bkk-din-daeng"), msg.Key)

	value := string(msg.Value)
	assert.Contains(t, value, `"location_id":"bkk-din-daeng"`)
	assert.Contains(t, value, `"value":1.7`)
	assert.Contains(t, value, `"category":"LOW"`)
	assert.Contains(t, value, `"quality":"EXCELLENT"`)
	assert.Contains(t, value, `"policy":"reference"`)
	assert.Contains(t, value, `"pm25":35.5`)
	assert.NotContains(t, value, `"pm10"`, "absent inputs are omitted")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "LOW", headers["category"])
	assert.Equal(t, "EXCELLENT", headers["quality"])
	assert.Equal(t, "2026-03-14T07:00:00Z", headers["hour"])
}

func TestPublishBatch_Empty(t *testing.T) {
	// An empty batch must be a no-op that never touches the writer.
	p := &Publisher{}
	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}
