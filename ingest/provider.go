package ingest

import (
	"context"
	"time"

	"github.com/iranianx/rate/storage/types"
)

// Provider is a single price sample provider (a channel scan or a
// website scrape)
type Provider interface {
	// Name returns the human-readable name of the provider
	Name() string

	// Interval returns the interval at which the provider should be called
	Interval() time.Duration

	// Fetch is the provider's main fetch job, yielding observed price samples
	Fetch(context.Context) ([]*types.Sample, error)
}
