package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iranianx/rate/storage/types"
)

type sampleKey struct {
	kind, source string
	takenAt      int64 // unix nanos
}

type Storage struct {
	samples map[sampleKey]types.Sample
	runs    []types.RunResult
	spots   map[string][]types.SpotPoint

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{
		samples: make(map[sampleKey]types.Sample),
		spots:   make(map[string][]types.SpotPoint),
	}
}

func (s *Storage) SaveSample(_ context.Context, sample *types.Sample) error {
	k := sampleKey{
		kind:    sample.Kind.String(),
		source:  sample.Source.String(),
		takenAt: sample.Time.UTC().UnixNano(),
	}

	elem := *sample
	elem.Time = elem.Time.UTC()
	elem.FetchedAt = elem.FetchedAt.UTC()

	s.mu.Lock()
	s.samples[k] = elem // key is unique
	s.mu.Unlock()

	return nil
}

func (s *Storage) SamplesSince(
	_ context.Context,
	kind types.Kind,
	cutoff time.Time,
) ([]*types.Sample, error) {
	cutoff = cutoff.UTC()

	s.mu.RLock()

	out := make([]*types.Sample, 0, len(s.samples))

	for _, v := range s.samples {
		if v.Kind != kind || v.Time.Before(cutoff) {
			continue
		}

		cp := v
		out = append(out, &cp)
	}

	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.After(out[j].Time)
		}

		return out[i].Source.String() < out[j].Source.String()
	})

	return out, nil
}

func (s *Storage) SaveRun(_ context.Context, run *types.RunResult) error {
	elem := *run
	elem.Time = elem.Time.UTC()

	s.mu.Lock()
	s.runs = append(s.runs, elem)
	s.mu.Unlock()

	return nil
}

func (s *Storage) LatestRun(_ context.Context) (*types.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, nil //nolint:nilnil // valid case
	}

	latest := s.runs[0]

	for _, run := range s.runs[1:] {
		if run.Time.After(latest.Time) {
			latest = run
		}
	}

	return &latest, nil
}

func (s *Storage) ListSources(_ context.Context) ([]types.Source, error) {
	s.mu.RLock()

	seen := make(map[string]struct{})

	for k := range s.samples {
		seen[k.source] = struct{}{}
	}

	s.mu.RUnlock()

	out := make([]types.Source, 0, len(seen))

	for v := range seen {
		out = append(out, types.Source(v))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})

	return out, nil
}

func (s *Storage) SaveSpot(_ context.Context, point *types.SpotPoint) error {
	elem := *point
	elem.Time = elem.Time.UTC()

	s.mu.Lock()
	s.spots[point.Code] = append(s.spots[point.Code], elem)
	s.mu.Unlock()

	return nil
}

func (s *Storage) SpotHistory(
	_ context.Context,
	code string,
	limit int32,
) (*types.Page[*types.SpotPoint], error) {
	if limit <= 0 {
		limit = 100
	}

	if limit > 500 {
		limit = 500
	}

	s.mu.RLock()

	points := s.spots[code]
	out := make([]*types.SpotPoint, 0, len(points))

	for i := range points {
		cp := points[i]
		out = append(out, &cp)
	}

	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.After(out[j].Time)
	})

	total := int64(len(out))

	if int64(limit) < total {
		out = out[:limit]
	}

	return &types.Page[*types.SpotPoint]{
		Results: out,
		Total:   total,
	}, nil
}
