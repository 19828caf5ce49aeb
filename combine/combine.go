package combine

import (
	"math"
	"sort"
	"time"

	"github.com/iranianx/rate/storage/types"
)

// outlierBandPct is the cross-source rejection band: a value more than
// this far outside every other source's range is not a market signal
const outlierBandPct = 5

// Rejection reasons recorded against removed samples
const (
	ReasonExpired  = "no-active"
	ReasonOutlier  = "outlier±5%"
	ReasonFlat     = "flat"
	ReasonDrop     = "drop>10%"
	ReasonFallback = "fallback"
)

// StageItem is one sample's view at a pipeline stage
type StageItem struct {
	Source types.Source `json:"source"`
	Value  float64      `json:"value"`
	Delta  float64      `json:"delta"`
	Weight float64      `json:"weight,omitempty"`
}

// Details captures every intermediate stage of a combine run, for the
// debug report
type Details struct {
	Raw       []StageItem `json:"raw"`
	Active    []StageItem `json:"active"`
	Outliers  []StageItem `json:"outliers"`
	FlatCut   []StageItem `json:"flat_cut"`
	Weighted  []StageItem `json:"weighted"`
	RawMedian float64     `json:"raw_median"`
	Median    float64     `json:"median"`
}

// Result is the outcome of combining one kind's samples. Fallback marks
// a delta taken from the raw median because no sample survived filtering.
type Result struct {
	Details  *Details              `json:"details,omitempty"`
	Used     []types.SourceVerdict `json:"used"`
	Removed  []types.SourceVerdict `json:"removed"`
	Delta    float64               `json:"delta"`
	Fallback bool                  `json:"fallback,omitempty"`
}

type item struct {
	sample *types.Sample
	delta  float64
	weight float64
}

// Combine runs the staged consensus pipeline over one kind's samples:
// per-source deltas against each source's own EWMA, a TTL filter with an
// all-unfiltered availability fallback, cross-source outlier rejection,
// the market-flatness filter, median-distance weighting, and a weighted
// average. The state is updated for every sample, including rejected
// ones, so a source's own baseline keeps tracking its behavior and it
// can recover from a temporary outlier classification.
func Combine(
	kind types.Kind,
	samples []*types.Sample,
	st State,
	anchor float64,
	th Thresholds,
	now time.Time,
) *Result {
	details := &Details{}

	result := &Result{
		Details: details,
	}

	if len(samples) == 0 {
		return result
	}

	// Stage 1: per-source deltas + EWMA updates
	items := make([]item, 0, len(samples))

	for _, sample := range samples {
		key := StateKey(kind, sample.Source)

		ref := anchor

		prev, ok := st[key]
		if ok && isUsable(prev.Ewma) {
			ref = prev.Ewma
		}

		var delta float64
		if isUsable(ref) {
			delta = 100 * (sample.Value/ref - 1)
		}

		ewma := sample.Value
		if ok && isUsable(prev.Ewma) {
			ewma = Alpha*sample.Value + (1-Alpha)*prev.Ewma
		}

		st[key] = Entry{
			Ewma: ewma,
			TS:   now.UTC(),
		}

		items = append(items, item{
			sample: sample,
			delta:  delta,
		})
		details.Raw = append(details.Raw, stageItem(sample, delta, 0))
	}

	// Stage 2: TTL filter, with the availability fallback: a stale
	// consensus beats none at all
	ttl := time.Duration(th.TTLMinutes * float64(time.Minute))

	active := make([]item, 0, len(items))

	for _, it := range items {
		if now.Sub(it.sample.Time) <= ttl {
			active = append(active, it)
		}
	}

	expired := len(active) == 0

	if expired {
		active = items
	} else if len(active) < len(items) {
		for _, it := range items {
			if now.Sub(it.sample.Time) > ttl {
				result.Removed = append(result.Removed, verdict(it, ReasonExpired))
			}
		}
	}

	for _, it := range active {
		details.Active = append(details.Active, stageItem(it.sample, it.delta, 0))
	}

	rawMedian := median(deltas(active))
	details.RawMedian = rawMedian

	// Stage 3: cross-source outlier rejection
	filtered := make([]item, 0, len(active))

	for i, it := range active {
		if isOutlier(i, active) {
			result.Removed = append(result.Removed, verdict(it, ReasonOutlier))
			details.Outliers = append(details.Outliers, stageItem(it.sample, it.delta, 0))

			continue
		}

		filtered = append(filtered, it)
	}

	// Stage 4: flat sources are stale when the market broadly moves
	if median(absDeltas(filtered)) >= th.MarketMinMedian {
		moving := make([]item, 0, len(filtered))

		for _, it := range filtered {
			if math.Abs(it.delta) < th.FlatCutAbsPct {
				result.Removed = append(result.Removed, verdict(it, ReasonFlat))
				details.FlatCut = append(details.FlatCut, stageItem(it.sample, it.delta, 0))

				continue
			}

			moving = append(moving, it)
		}

		filtered = moving
	}

	// Stage 5: median-distance weighting
	m := rawMedian
	if len(filtered) > 0 {
		m = median(deltas(filtered))
	}

	details.Median = m

	var (
		used      = make([]item, 0, len(filtered))
		weightSum float64
		deltaSum  float64
	)

	for _, it := range filtered {
		gap := math.Abs(it.delta - m)

		if gap > th.DropGapPct {
			result.Removed = append(result.Removed, verdict(it, ReasonDrop))

			continue
		}

		it.weight = 1.0
		if gap > th.HalfWeightGapPct {
			it.weight = 0.5
		}

		used = append(used, it)
		weightSum += it.weight
		deltaSum += it.weight * it.delta

		details.Weighted = append(details.Weighted, stageItem(it.sample, it.delta, it.weight))
	}

	// Stage 6: weighted average, or the raw median when everything was
	// filtered away
	if weightSum > 0 {
		result.Delta = deltaSum / weightSum

		for _, it := range used {
			result.Used = append(result.Used, types.SourceVerdict{
				Source: it.sample.Source,
				Delta:  it.delta,
				Weight: it.weight,
				Used:   true,
			})
		}

		return result
	}

	// Nothing survived: the raw median still beats reporting nothing
	if !math.IsNaN(m) && !math.IsInf(m, 0) {
		result.Delta = m
	}

	result.Fallback = true

	return result
}

// Apply derives the rounded spot value from a combined delta and the
// configured anchor
func Apply(delta float64, anchor Anchor) int64 {
	spot := anchor.Anchor * (1 + delta/100)

	if anchor.OffsetPct != 0 {
		spot *= 1 + anchor.OffsetPct/100
	}

	return int64(math.Round(spot))
}

// isOutlier reports whether the i-th sample's value lands more than the
// outlier band outside every other sample's range. A lone sample passes.
func isOutlier(i int, items []item) bool {
	if len(items) < 2 {
		return false
	}

	var (
		lo = math.Inf(1)
		hi = math.Inf(-1)
	)

	for j, other := range items {
		if j == i {
			continue
		}

		lo = math.Min(lo, other.sample.Value)
		hi = math.Max(hi, other.sample.Value)
	}

	v := items[i].sample.Value

	return v < lo*(1-outlierBandPct/100.0) || v > hi*(1+outlierBandPct/100.0)
}

func isUsable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func deltas(items []item) []float64 {
	out := make([]float64, 0, len(items))

	for _, it := range items {
		out = append(out, it.delta)
	}

	return out
}

func absDeltas(items []item) []float64 {
	out := make([]float64, 0, len(items))

	for _, it := range items {
		out = append(out, math.Abs(it.delta))
	}

	return out
}

// median returns the middle value, averaging the two central values for
// an even count. Zero for an empty input.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2

	if len(sorted)%2 == 1 {
		return sorted[mid]
	}

	return (sorted[mid-1] + sorted[mid]) / 2
}

func stageItem(sample *types.Sample, delta, weight float64) StageItem {
	return StageItem{
		Source: sample.Source,
		Value:  sample.Value,
		Delta:  delta,
		Weight: weight,
	}
}

func verdict(it item, reason string) types.SourceVerdict {
	return types.SourceVerdict{
		Source: it.sample.Source,
		Delta:  it.delta,
		Reason: reason,
	}
}
