// Package crowd estimates a rate from many independent "selling" posts
// instead of curated channel quotes: deduplicate, gate on spread, then
// take a weighted trimmed mean.
package crowd

import (
	"math"
	"sort"
	"time"

	"github.com/iranianx/rate/storage/types"
)

// Estimation methods recorded in the summary
const (
	MethodTrimmedMean = "trimmed_mean"
	MethodMean        = "mean"
)

// Sample is one crowd post reduced to its tradable facts
type Sample struct {
	Time     time.Time
	Source   types.Source
	Phone    string
	Location string
	Link     string
	Excerpt  string
	Value    float64
	Qty      float64
	ID       int64
}

// Config carries the aggregation tunables
type Config struct {
	// Hubs maps a location keyword to a soft weight multiplier. Known
	// trading hubs sit above 1, dubious locations below.
	Hubs map[string]float64

	// MinSamples is the minimum deduplicated count for any estimate
	MinSamples int

	// MaxSpreadPct refuses an estimate when (max-min)/median exceeds it
	MaxSpreadPct float64

	// TrimFraction is trimmed symmetrically from each end before averaging
	TrimFraction float64

	// TTL bounds post age during scanning
	TTL time.Duration
}

// DefaultConfig returns the aggregation defaults
func DefaultConfig() Config {
	return Config{
		MinSamples:   5,
		MaxSpreadPct: 1,
		TrimFraction: 0.2,
		TTL:          time.Hour,
		Hubs: map[string]float64{
			"تهران": 1.2,
			"مشهد":  1.1,
		},
	}
}

// Summary is the aggregation outcome. A zero Estimate with an empty
// Method means the gates refused to produce one.
type Summary struct {
	Method    string  `json:"method,omitempty"`
	Estimate  float64 `json:"estimate"`
	SpreadPct float64 `json:"spread_pct"`
	Count     int     `json:"count"`
}

// Dedupe collapses posts to one per identity, keeping the newest. A phone
// number is a real-world identity shared across reposts; posts without
// one fall back to source and post id.
func Dedupe(samples []Sample) []Sample {
	type identity struct {
		phone  string
		source types.Source
		id     int64
	}

	best := make(map[identity]Sample, len(samples))
	order := make([]identity, 0, len(samples))

	for _, s := range samples {
		var key identity

		if s.Phone != "" {
			key = identity{phone: s.Phone}
		} else {
			key = identity{source: s.Source, id: s.ID}
		}

		cur, ok := best[key]
		if !ok {
			best[key] = s
			order = append(order, key)

			continue
		}

		if s.Time.After(cur.Time) {
			best[key] = s
		}
	}

	out := make([]Sample, 0, len(order))

	for _, key := range order {
		out = append(out, best[key])
	}

	return out
}

// Aggregate computes the spread-gated trimmed-mean estimate over the
// deduplicated samples. Gates fail closed: too few samples or too much
// disagreement yields no estimate at all.
func Aggregate(samples []Sample, cfg Config) Summary {
	deduped := Dedupe(samples)

	summary := Summary{
		Count: len(deduped),
	}

	if len(deduped) < cfg.MinSamples {
		return summary
	}

	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].Value < deduped[j].Value
	})

	var (
		lo  = deduped[0].Value
		hi  = deduped[len(deduped)-1].Value
		med = medianValue(deduped)
	)

	if med <= 0 {
		return summary
	}

	summary.SpreadPct = (hi - lo) / med * 100

	// High spread signals conflicting raw data, not a consensus
	if summary.SpreadPct > cfg.MaxSpreadPct {
		return summary
	}

	trim := int(math.Floor(float64(len(deduped)) * cfg.TrimFraction))
	kept := deduped[trim : len(deduped)-trim]

	var (
		weightSum float64
		valueSum  float64
	)

	for _, s := range kept {
		w := s.weight(cfg.Hubs)

		weightSum += w
		valueSum += w * s.Value
	}

	if weightSum == 0 {
		return summary
	}

	summary.Estimate = math.Round(valueSum / weightSum)

	summary.Method = MethodMean
	if trim > 0 {
		summary.Method = MethodTrimmedMean
	}

	return summary
}

// weight scales a sample by its inferred transaction quantity and the
// location multiplier
func (s Sample) weight(hubs map[string]float64) float64 {
	w := 1.0

	// Larger offers carry more signal, capped so one whale post can't
	// dominate the mean
	if s.Qty > 0 {
		w += math.Min(s.Qty, 5000) / 5000
	}

	if mult, ok := hubs[s.Location]; ok && mult > 0 {
		w *= mult
	}

	return w
}

func medianValue(sorted []Sample) float64 {
	mid := len(sorted) / 2

	if len(sorted)%2 == 1 {
		return sorted[mid].Value
	}

	return (sorted[mid-1].Value + sorted[mid].Value) / 2
}
