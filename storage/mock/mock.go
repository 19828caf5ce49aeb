package mock

import (
	"context"
	"time"

	"github.com/iranianx/rate/storage/types"
)

type (
	SaveSampleDelegate   func(context.Context, *types.Sample) error
	SamplesSinceDelegate func(context.Context, types.Kind, time.Time) ([]*types.Sample, error)
	SaveRunDelegate      func(context.Context, *types.RunResult) error
	LatestRunDelegate    func(context.Context) (*types.RunResult, error)
	ListSourcesDelegate  func(context.Context) ([]types.Source, error)
	SaveSpotDelegate     func(context.Context, *types.SpotPoint) error
	SpotHistoryDelegate  func(context.Context, string, int32) (*types.Page[*types.SpotPoint], error)
)

type Storage struct {
	SaveSampleFn   SaveSampleDelegate
	SamplesSinceFn SamplesSinceDelegate
	SaveRunFn      SaveRunDelegate
	LatestRunFn    LatestRunDelegate
	ListSourcesFn  ListSourcesDelegate
	SaveSpotFn     SaveSpotDelegate
	SpotHistoryFn  SpotHistoryDelegate
}

func (m *Storage) SaveSample(ctx context.Context, sample *types.Sample) error {
	if m.SaveSampleFn != nil {
		return m.SaveSampleFn(ctx, sample)
	}

	return nil
}

func (m *Storage) SamplesSince(
	ctx context.Context,
	kind types.Kind,
	cutoff time.Time,
) ([]*types.Sample, error) {
	if m.SamplesSinceFn != nil {
		return m.SamplesSinceFn(ctx, kind, cutoff)
	}

	return nil, nil
}

func (m *Storage) SaveRun(ctx context.Context, run *types.RunResult) error {
	if m.SaveRunFn != nil {
		return m.SaveRunFn(ctx, run)
	}

	return nil
}

func (m *Storage) LatestRun(ctx context.Context) (*types.RunResult, error) {
	if m.LatestRunFn != nil {
		return m.LatestRunFn(ctx)
	}

	return nil, nil
}

func (m *Storage) ListSources(ctx context.Context) ([]types.Source, error) {
	if m.ListSourcesFn != nil {
		return m.ListSourcesFn(ctx)
	}

	return nil, nil
}

func (m *Storage) SaveSpot(ctx context.Context, point *types.SpotPoint) error {
	if m.SaveSpotFn != nil {
		return m.SaveSpotFn(ctx, point)
	}

	return nil
}

func (m *Storage) SpotHistory(
	ctx context.Context,
	code string,
	limit int32,
) (*types.Page[*types.SpotPoint], error) {
	if m.SpotHistoryFn != nil {
		return m.SpotHistoryFn(ctx, code, limit)
	}

	return nil, nil
}
