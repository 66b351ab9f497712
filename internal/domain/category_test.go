package domain

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		aqi  int
		want string
	}{
		{"good lower edge", 0, "Good"},
		{"good upper edge", 50, "Good"},
		{"moderate lower edge", 51, "Moderate"},
		{"moderate upper edge", 100, "Moderate"},
		{"usg", 120, "Unhealthy for Sensitive Groups"},
		{"unhealthy", 180, "Unhealthy"},
		{"very unhealthy", 250, "Very Unhealthy"},
		{"hazardous lower edge", 301, "Hazardous"},
		{"hazardous upper edge", 500, "Hazardous"},
		{"above scale", 501, CategoryUnknown},
		{"out of range sentinel", AQIOutOfRange, CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.aqi))
		})
	}
}

func daily(site SiteKey, parameter, date string, aqi int, source Source) DailyAQI {
	return DailyAQI{
		Site:          site,
		ParameterCode: parameter,
		DateLocal:     date,
		AQI:           aqi,
		Source:        source,
	}
}

func TestAggregateCategories(t *testing.T) {
	dailies := []DailyAQI{
		daily(testSite, "88101", "2024-03-01", 42, SourceAQS),
		daily(testSite, "88101", "2024-03-02", 48, SourceAQS),
		daily(testSite, "88101", "2024-03-03", 75, SourceAQS),
		daily(testSite, "88101", "2024-03-04", AQIOutOfRange, SourceEnvista),
		daily(testSite, "81102", "2024-03-01", 30, SourceAQS),
	}

	got := AggregateCategories(dailies)

	want := []CategorySummary{
		{ParameterCode: "81102", Category: "Good", Site: testSite, Year: 2024, Days: 1},
		{ParameterCode: "88101", Category: "Good", Site: testSite, Year: 2024, Days: 2},
		{ParameterCode: "88101", Category: "Moderate", Site: testSite, Year: 2024, Days: 1},
		{ParameterCode: "88101", Category: CategoryUnknown, Site: testSite, Year: 2024, Days: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("aggregation mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateCategories_OrderIndependent(t *testing.T) {
	dailies := []DailyAQI{
		daily(testSite, "88101", "2024-01-01", 10, SourceAQS),
		daily(testSite, "88101", "2024-01-02", 60, SourceAQS),
		daily(testSite, "88101", "2024-01-03", 110, SourceEnvista),
		daily(testSite, "44201", "2024-01-01", 30, SourceAQS),
	}

	base := AggregateCategories(dailies)

	shuffled := make([]DailyAQI, len(dailies))
	copy(shuffled, dailies)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if diff := cmp.Diff(base, AggregateCategories(shuffled)); diff != "" {
			t.Fatalf("ordering changed the aggregate (-base +shuffled):\n%s", diff)
		}
	}
}

func TestAggregateCategories_Idempotent(t *testing.T) {
	// Resubmitting the identical set recomputes, it does not accumulate.
	dailies := []DailyAQI{
		daily(testSite, "88101", "2024-01-01", 10, SourceAQS),
		daily(testSite, "88101", "2024-01-02", 20, SourceAQS),
	}

	first := AggregateCategories(dailies)
	second := AggregateCategories(dailies)

	require.Equal(t, first, second)
	require.Len(t, first, 1)
	assert.Equal(t, 2, first[0].Days)
}

func TestAggregateCategories_UnparseableDateSkipped(t *testing.T) {
	dailies := []DailyAQI{
		daily(testSite, "88101", "2024-01-01", 10, SourceAQS),
		daily(testSite, "88101", "bad", 10, SourceAQS),
	}

	got := AggregateCategories(dailies)

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Days)
}
