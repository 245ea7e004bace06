package freshness

import (
	"context"
	"errors"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLatest struct {
	sample domain.Sample
	ok     bool
	err    error
}

func (f fakeLatest) Latest(context.Context, string) (domain.Sample, bool, error) {
	return f.sample, f.ok, f.err
}

func TestCheck_TTLBoundary(t *testing.T) {
	T := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	o := NewOracle(fakeLatest{sample: domain.Sample{Timestamp: T.UnixMilli(), Value: 5}, ok: true}, zerolog.Nop())
	ttl := constants.SampleTTL

	tests := []struct {
		name string
		now  time.Time
		want Status
	}{
		{"just written", T, StatusFresh},
		{"ttl minus one ms", T.Add(ttl - time.Millisecond), StatusFresh},
		{"exactly ttl", T.Add(ttl), StatusStale},
		{"ttl plus one ms", T.Add(ttl + time.Millisecond), StatusStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := o.Check(context.Background(), "crazy-time", tt.now)
			assert.Equal(t, tt.want, v.Status)
			require.NotNil(t, v.Latest)
			assert.Equal(t, 5, v.Latest.Value)
		})
	}
}

func TestCheck_NoSample(t *testing.T) {
	o := NewOracle(fakeLatest{}, zerolog.Nop())
	v := o.Check(context.Background(), "crazy-time", time.Now())
	assert.Equal(t, StatusNoSample, v.Status)
	assert.Nil(t, v.Latest)
	assert.False(t, o.IsFresh(context.Background(), "crazy-time", time.Now()))
}

func TestCheck_ReadErrorIsNoSample(t *testing.T) {
	o := NewOracle(fakeLatest{err: errors.New("boom")}, zerolog.Nop())
	assert.Equal(t, StatusNoSample, o.Check(context.Background(), "x", time.Now()).Status)
}

func TestWithTTL(t *testing.T) {
	T := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	o := NewOracle(fakeLatest{sample: domain.Sample{Timestamp: T.UnixMilli()}, ok: true}, zerolog.Nop()).WithTTL(time.Minute)
	assert.True(t, o.IsFresh(context.Background(), "x", T.Add(59*time.Second)))
	assert.False(t, o.IsFresh(context.Background(), "x", T.Add(61*time.Second)))
}
