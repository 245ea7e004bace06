package store

import (
	"context"
	"fmt"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/storage"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
)

// SampleStore owns the per-identifier series. Physical order is newest
// first; every read returns ascending timestamps.
type SampleStore struct {
	backend storage.Backend
	logger  zerolog.Logger
}

func NewSampleStore(backend storage.Backend, logger zerolog.Logger) *SampleStore {
	return &SampleStore{backend: backend, logger: logger}
}

func SeriesKey(id string) string { return constants.SeriesKeyPrefix + id }

func Validate(id string, ts time.Time, value float64) (domain.Sample, error) {
	switch {
	case id == "":
		return domain.Sample{}, &domain.ValidationError{Field: "id", Reason: "empty"}
	case ts.IsZero() || ts.UnixMilli() <= 0:
		return domain.Sample{}, &domain.ValidationError{Field: "timestamp", Reason: "unparsable"}
	case math.IsNaN(value) || math.IsInf(value, 0):
		return domain.Sample{}, &domain.ValidationError{Field: "value", Reason: "not finite"}
	case value < 0:
		return domain.Sample{}, &domain.ValidationError{Field: "value", Reason: "negative"}
	case value > constants.MaxPlayers:
		return domain.Sample{}, &domain.ValidationError{Field: "value", Reason: fmt.Sprintf("above %d", constants.MaxPlayers)}
	case value != math.Trunc(value):
		return domain.Sample{}, &domain.ValidationError{Field: "value", Reason: "not an integer"}
	}
	return domain.Sample{Timestamp: ts.UnixMilli(), Value: int(value)}, nil
}

func (s *SampleStore) Append(ctx context.Context, id string, ts time.Time, value float64) (domain.Sample, error) {
	sample, err := Validate(id, ts, value)
	if err != nil {
		s.logger.Warn().Err(err).Str("id", id).Float64("value", value).Msg("rejected sample")
		return domain.Sample{}, err
	}

	row, err := encodeSample(sample)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("failed to encode sample: %w", err)
	}

	if err := s.backend.PushCapped(ctx, SeriesKey(id), row, constants.MaxSamples, constants.SeriesKeyTTL); err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("failed to append sample")
		return domain.Sample{}, fmt.Errorf("failed to append sample for %s: %w", id, err)
	}

	s.logger.Debug().Str("id", id).Int64("ts", sample.Timestamp).Int("value", sample.Value).Msg("sample appended")
	return sample, nil
}

// Recent returns samples with timestamp >= since in ascending order.
// Malformed rows are skipped.
func (s *SampleStore) Recent(ctx context.Context, id string, since int64) ([]domain.Sample, error) {
	rows, err := s.backend.Range(ctx, SeriesKey(id), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read series for %s: %w", id, err)
	}

	samples := make([]domain.Sample, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		sample, ok := decodeSample(row)
		if !ok {
			dropped++
			continue
		}
		if sample.Timestamp >= since {
			samples = append(samples, sample)
		}
	}
	if dropped > 0 {
		s.logger.Debug().Str("id", id).Int("dropped", dropped).Msg("skipped malformed series rows")
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })
	return samples, nil
}

// Latest returns the newest structurally valid sample within the first
// LatestScanDepth physical rows.
func (s *SampleStore) Latest(ctx context.Context, id string) (domain.Sample, bool, error) {
	rows, err := s.backend.Range(ctx, SeriesKey(id), 0, constants.LatestScanDepth-1)
	if err != nil {
		return domain.Sample{}, false, fmt.Errorf("failed to read latest for %s: %w", id, err)
	}
	for _, row := range rows {
		if sample, ok := decodeSample(row); ok {
			return sample, true, nil
		}
	}
	return domain.Sample{}, false, nil
}

func encodeSample(sample domain.Sample) ([]byte, error) {
	return msgpack.Marshal(&sample)
}

// decodeSample accepts msgpack rows and the older JSON rows
// ({"ts":..,"value":..} or {"timestamp":..,"players":..}).
func decodeSample(row []byte) (domain.Sample, bool) {
	if len(row) == 0 {
		return domain.Sample{}, false
	}

	if gjson.ValidBytes(row) {
		return decodeLegacy(row)
	}

	var sample domain.Sample
	if err := msgpack.Unmarshal(row, &sample); err != nil {
		return domain.Sample{}, false
	}
	return sample, sampleValid(sample)
}

func decodeLegacy(row []byte) (domain.Sample, bool) {
	doc := gjson.ParseBytes(row)
	if !doc.IsObject() {
		return domain.Sample{}, false
	}
	ts := doc.Get("ts")
	if !ts.Exists() {
		ts = doc.Get("timestamp")
	}
	value := doc.Get("value")
	if !value.Exists() {
		value = doc.Get("players")
	}
	if ts.Type != gjson.Number || value.Type != gjson.Number {
		return domain.Sample{}, false
	}
	v := value.Float()
	if v != math.Trunc(v) {
		return domain.Sample{}, false
	}
	sample := domain.Sample{Timestamp: ts.Int(), Value: int(v)}
	return sample, sampleValid(sample)
}

func sampleValid(s domain.Sample) bool {
	return s.Timestamp > 0 && s.Value >= 0 && s.Value <= constants.MaxPlayers
}
