package series

import (
	"livegame-tracker/internal/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(t *testing.T, s string, v int) domain.Sample {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad time %q: %v", s, err)
	}
	return domain.Sample{Timestamp: ts.UnixMilli(), Value: v}
}

func TestDailyAverages(t *testing.T) {
	samples := []domain.Sample{
		at(t, "2025-01-10T08:00:00Z", 100),
		at(t, "2025-01-10T20:00:00Z", 200),
	}

	got := DailyAverages(samples, time.UTC)
	assert.Equal(t, []domain.DailyAverage{{Date: "2025-01-10", Avg: 150}}, got)

	now := time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)
	assert.Empty(t, CompletedDays(got, now, time.UTC))
}

func TestDailyAverages_TimeZoneAndRounding(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	samples := []domain.Sample{
		at(t, "2025-01-09T23:30:00Z", 10), // 00:30 on the 10th in CET
		at(t, "2025-01-10T10:00:00Z", 11),
		at(t, "2025-01-10T11:00:00Z", 11),
		at(t, "2025-01-09T12:00:00Z", 1),
		at(t, "2025-01-09T13:00:00Z", 2),
		at(t, "2025-01-09T14:00:00Z", 2),
	}

	got := DailyAverages(samples, berlin)
	assert.Equal(t, []domain.DailyAverage{
		{Date: "2025-01-09", Avg: 1.67},
		{Date: "2025-01-10", Avg: 10.67},
	}, got)
}

func TestCompletedDays(t *testing.T) {
	days := []domain.DailyAverage{
		{Date: "2025-01-08", Avg: 1},
		{Date: "2025-01-09", Avg: 2},
		{Date: "2025-01-10", Avg: 3},
	}
	now := time.Date(2025, 1, 10, 0, 5, 0, 0, time.UTC)

	got := CompletedDays(days, now, time.UTC)
	assert.Equal(t, days[:2], got)
}

func TestDailyAverages_Empty(t *testing.T) {
	assert.Empty(t, DailyAverages(nil, time.UTC))
}
