// Package pipeline runs the one-shot estimation cycle: fetch samples
// from every provider, combine them per kind, reconcile the tether
// estimate against the cash dollar, and derive the published spot table.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/iranianx/rate/combine"
	"github.com/iranianx/rate/fxcross"
	"github.com/iranianx/rate/ingest"
	"github.com/iranianx/rate/storage"
	"github.com/iranianx/rate/storage/types"
)

const (
	// sampleWindow bounds the sample query. Staleness itself is handled
	// by the combiner's TTL filter.
	sampleWindow = time.Hour * 24

	// usdtTolerancePct bounds how far the tether estimate may drift from
	// the cash-dollar-derived value before it gets pulled halfway back
	usdtTolerancePct = 1.0
)

// Report is the full outcome of one pipeline run, including the
// per-stage combine details for the debug report
type Report struct {
	Result  *types.RunResult
	Details map[types.Kind]*combine.Details
}

// Pipeline is the one-shot rate estimation pipeline
type Pipeline struct {
	store      storage.Storage
	fx         *fxcross.Client
	providers  []ingest.Provider
	baseline   combine.Baseline
	thresholds combine.Thresholds

	logger *slog.Logger
	now    func() time.Time
}

// New creates a new estimation pipeline over the given providers
func New(
	store storage.Storage,
	fx *fxcross.Client,
	baseline combine.Baseline,
	thresholds combine.Thresholds,
	providers []ingest.Provider,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:      store,
		fx:         fx,
		providers:  providers,
		baseline:   baseline,
		thresholds: thresholds,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}

	// Apply the options
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes one full cycle: fetch, combine, reconcile, derive spots,
// and persist the run. The given state is updated in place for every
// observed sample; saving it is the caller's concern.
func (p *Pipeline) Run(ctx context.Context, st combine.State) (*Report, error) {
	now := p.now().UTC()

	if err := p.gather(ctx); err != nil {
		return nil, err
	}

	usdRes, usdAnchor, err := p.combineKind(ctx, types.KindUSD, st, now)
	if err != nil {
		return nil, err
	}

	usdtRes, usdtAnchor, err := p.combineKind(ctx, types.KindUSDT, st, now)
	if err != nil {
		return nil, err
	}

	eurRes, eurAnchor, err := p.combineKind(ctx, types.KindEUR, st, now)
	if err != nil {
		return nil, err
	}

	var (
		usdSpot  = combine.Apply(usdRes.Delta, usdAnchor)
		usdtSpot = reconcileUSDT(usdtRes.Delta, usdRes.Delta, usdtAnchor)
		eurSpot  = combine.Apply(eurRes.Delta, eurAnchor)
	)

	spots := map[string]int64{
		"usd":  usdSpot,
		"usdt": usdtSpot,
		"eur":  eurSpot,
	}

	// Derive the remaining spot table through USD cross rates
	crosses := p.fx.Rates(ctx, p.baseline.Symbols)

	for symbol, rate := range crosses {
		code := strings.ToLower(symbol)

		if _, ok := spots[code]; ok {
			continue
		}

		if rate <= 0 {
			continue
		}

		spots[code] = int64(math.Round(float64(usdSpot) / rate))
	}

	result := &types.RunResult{
		ID:   xid.New().String(),
		Time: now,
		Deltas: map[types.Kind]float64{
			types.KindUSD:  usdRes.Delta,
			types.KindUSDT: usdtRes.Delta,
			types.KindEUR:  eurRes.Delta,
		},
		Verdicts: map[types.Kind][]types.SourceVerdict{
			types.KindUSD:  verdicts(usdRes),
			types.KindUSDT: verdicts(usdtRes),
			types.KindEUR:  verdicts(eurRes),
		},
		Spots: spots,
	}

	if err := p.store.SaveRun(ctx, result); err != nil {
		return nil, fmt.Errorf("unable to save run: %w", err)
	}

	for code, value := range spots {
		point := &types.SpotPoint{
			Time:  now,
			Code:  code,
			Value: value,
		}

		if err := p.store.SaveSpot(ctx, point); err != nil {
			return nil, fmt.Errorf("unable to save spot %s: %w", code, err)
		}
	}

	p.logger.Info(
		"pipeline run complete",
		"id", result.ID,
		"usd", usdSpot,
		"usdt", usdtSpot,
		"eur", eurSpot,
	)

	return &Report{
		Result: result,
		Details: map[types.Kind]*combine.Details{
			types.KindUSD:  usdRes.Details,
			types.KindUSDT: usdtRes.Details,
			types.KindEUR:  eurRes.Details,
		},
	}, nil
}

// gather fetches every provider once and persists the samples. A failed
// provider degrades to no samples for this run.
func (p *Pipeline) gather(ctx context.Context) error {
	for _, provider := range p.providers {
		samples, err := provider.Fetch(ctx)
		if err != nil {
			p.logger.Warn(
				"provider fetch failed",
				"name", provider.Name(),
				"err", err,
			)

			continue
		}

		for _, sample := range samples {
			if err := p.store.SaveSample(ctx, sample); err != nil {
				return fmt.Errorf("unable to save sample from %s: %w", provider.Name(), err)
			}
		}

		p.logger.Info(
			"provider fetched",
			"name", provider.Name(),
			"samples", len(samples),
		)
	}

	return nil
}

// combineKind loads the kind's recent samples and runs the consensus
// pipeline against the kind's baseline anchor
func (p *Pipeline) combineKind(
	ctx context.Context,
	kind types.Kind,
	st combine.State,
	now time.Time,
) (*combine.Result, combine.Anchor, error) {
	anchor, err := p.baseline.Anchor(string(kind))
	if err != nil {
		return nil, combine.Anchor{}, fmt.Errorf("unable to resolve %s anchor: %w", kind, err)
	}

	samples, err := p.store.SamplesSince(ctx, kind, now.Add(-sampleWindow))
	if err != nil {
		return nil, combine.Anchor{}, fmt.Errorf("unable to load %s samples: %w", kind, err)
	}

	return combine.Combine(kind, latestPerSource(samples), st, anchor.Anchor, p.thresholds, now), anchor, nil
}

// latestPerSource collapses the sample history to each source's newest
// observation. The combiner takes one vote and one smoothing step per
// source, so older samples of the same source must not re-enter.
func latestPerSource(samples []*types.Sample) []*types.Sample {
	index := make(map[types.Source]int, len(samples))
	out := make([]*types.Sample, 0, len(samples))

	for _, sample := range samples {
		i, ok := index[sample.Source]
		if !ok {
			index[sample.Source] = len(out)
			out = append(out, sample)

			continue
		}

		if sample.Time.After(out[i].Time) {
			out[i] = sample
		}
	}

	return out
}

// reconcileUSDT checks the tether consensus against the cash-dollar
// move applied to the tether anchor. The two markets track each other,
// so an estimate drifting past the tolerance is pulled halfway back.
func reconcileUSDT(usdtDelta, usdDelta float64, anchor combine.Anchor) int64 {
	var (
		estimate = combine.Apply(usdtDelta, anchor)
		derived  = combine.Apply(usdDelta, anchor)
	)

	if derived <= 0 {
		return estimate
	}

	driftPct := math.Abs(float64(estimate-derived)) / float64(derived) * 100
	if driftPct <= usdtTolerancePct {
		return estimate
	}

	return int64(math.Round(float64(estimate+derived) / 2))
}

// verdicts flattens a combine result into the persisted verdict list,
// used sources first
func verdicts(res *combine.Result) []types.SourceVerdict {
	out := make([]types.SourceVerdict, 0, len(res.Used)+len(res.Removed))

	out = append(out, res.Used...)
	out = append(out, res.Removed...)

	return out
}
