package storage

import (
	"context"
	"time"

	"github.com/iranianx/rate/storage/types"
)

// Storage is an abstraction over sample and run history data
type Storage interface {
	// SaveSample saves the given observed price sample
	SaveSample(context.Context, *types.Sample) error

	// SamplesSince fetches samples of the given kind observed after the cutoff
	SamplesSince(context.Context, types.Kind, time.Time) ([]*types.Sample, error)

	// SaveRun saves the outcome of a combine run
	SaveRun(context.Context, *types.RunResult) error

	// LatestRun fetches the most recent combine run, or nil when none exist
	LatestRun(context.Context) (*types.RunResult, error)

	// ListSources lists all sources that produced samples
	ListSources(context.Context) ([]types.Source, error)

	// SaveSpot appends a derived spot value to the trend history
	SaveSpot(context.Context, *types.SpotPoint) error

	// SpotHistory fetches the most recent spot values for a code, newest first
	SpotHistory(context.Context, string, int32) (*types.Page[*types.SpotPoint], error)
}
