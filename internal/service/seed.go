package service

import (
	"context"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/store"
)

// latestResults turns each identifier's newest stored sample into a result.
// Identifiers without a readable sample get a failed result carrying why.
// newest is the largest sample timestamp seen, zero when there is none.
func latestResults(ctx context.Context, samples *store.SampleStore, ids []string) (results []domain.FetchResult, newest int64) {
	results = make([]domain.FetchResult, 0, len(ids))
	for _, id := range ids {
		latest, ok, err := samples.Latest(ctx, id)
		switch {
		case err != nil:
			results = append(results, domain.FetchResult{ID: id, Error: err.Error()})
		case !ok:
			results = append(results, domain.FetchResult{ID: id, Error: "no data"})
		default:
			v := latest.Value
			results = append(results, domain.FetchResult{ID: id, OK: true, Players: &v, FetchedAt: latest.Timestamp})
			newest = max(newest, latest.Timestamp)
		}
	}
	return results, newest
}
