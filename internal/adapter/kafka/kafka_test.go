package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificaqd/airquality-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	generatedAt := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	record := domain.DailyAQI{
		Site:          domain.SiteKey{StateCode: "41", CountyCode: "051", SiteNumber: "0080"},
		ParameterCode: "88101",
		DateLocal:     "2024-03-01",
		ConcAvg:       10.5,
		AQI:           44,
		Source:        domain.SourceAQS,
		GeneratedAt:   generatedAt,
	}

	msg, err := serializeToMessage(record)
	require.NoError(t, err)

	assert.Equal(t, []byte("41-051-0080-88101"), msg.Key)
	assert.Contains(t, string(msg.Value), `"aqi":44`)
	assert.Contains(t, string(msg.Value), `"data_source":"AQS"`)

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "category", msg.Headers[0].Key)
	assert.Equal(t, []byte("Good"), msg.Headers[0].Value)
	assert.Equal(t, "aqi", msg.Headers[1].Key)
	assert.Equal(t, []byte("44"), msg.Headers[1].Value)
	assert.Equal(t, "generated_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(generatedAt.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestSerializeToMessage_SentinelCategoryIsUnknown(t *testing.T) {
	record := domain.DailyAQI{
		Site:          domain.SiteKey{StateCode: "41", CountyCode: "051", SiteNumber: "0080"},
		ParameterCode: "88101",
		DateLocal:     "2024-03-01",
		AQI:           domain.AQIOutOfRange,
		Source:        domain.SourceEnvista,
	}

	msg, err := serializeToMessage(record)
	require.NoError(t, err)
	assert.Equal(t, []byte(domain.CategoryUnknown), msg.Headers[0].Value)
}
