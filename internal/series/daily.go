package series

import (
	"livegame-tracker/internal/domain"
	"math"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// DailyAverages buckets samples by calendar day in loc and returns one
// average per day, ascending, rounded to two decimals.
func DailyAverages(samples []domain.Sample, loc *time.Location) []domain.DailyAverage {
	if loc == nil {
		loc = time.UTC
	}

	type bucket struct {
		sum   int64
		count int64
	}
	buckets := make(map[string]*bucket)
	for _, s := range samples {
		day := s.Time().In(loc).Format(dateLayout)
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		b.sum += int64(s.Value)
		b.count++
	}

	out := make([]domain.DailyAverage, 0, len(buckets))
	for day, b := range buckets {
		out = append(out, domain.DailyAverage{Date: day, Avg: round2(float64(b.sum) / float64(b.count))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// CompletedDays drops the bucket for the day now falls on in loc.
func CompletedDays(days []domain.DailyAverage, now time.Time, loc *time.Location) []domain.DailyAverage {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Format(dateLayout)
	out := make([]domain.DailyAverage, 0, len(days))
	for _, d := range days {
		if d.Date != today {
			out = append(out, d)
		}
	}
	return out
}

// Since returns the unix-ms lower bound for a window of the given number of days.
func Since(now time.Time, days int) int64 {
	return now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
