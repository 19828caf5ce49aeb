package crowd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iranianx/rate/extract"
	"github.com/iranianx/rate/farsi"
	"github.com/iranianx/rate/storage/types"
	"github.com/iranianx/rate/telegram"
)

// currencyMarkers qualify a crowd post as an FX offer at all
var currencyMarkers = []string{"دلار", "یورو", "usd", "$"}

// defaultBand bounds values when no reference rate is available
var defaultBand = extract.Band{Min: 80_000, Max: 130_000}

// Scan collects crowd samples from the first page of a channel: every
// post within the TTL carrying a currency marker and a plausible value.
// A known reference rate narrows the plausibility band to a soft ±20%
// guard around it.
func Scan(
	ctx context.Context,
	fetcher telegram.Fetcher,
	channel string,
	cfg Config,
	reference float64,
	now time.Time,
) ([]Sample, error) {
	posts, err := fetcher.Page(ctx, channel, 0, true)
	if err != nil {
		return nil, fmt.Errorf("unable to scan crowd channel %s: %w", channel, err)
	}

	band := defaultBand
	if reference > 0 {
		band = extract.Band{
			Min: reference * 0.8,
			Max: reference * 1.2,
		}
	}

	hubs := hubKeywords(cfg.Hubs)

	var out []Sample

	for _, post := range posts {
		if post.Time.IsZero() || now.Sub(post.Time) > cfg.TTL {
			continue
		}

		if !farsi.ContainsAny(post.Text, currencyMarkers) {
			continue
		}

		candidates := extract.Candidates(post.Text, currencyMarkers, band)
		if len(candidates) == 0 {
			continue
		}

		sample := Sample{
			Time:     post.Time,
			Source:   types.Source(channel),
			ID:       post.ID,
			Phone:    extract.Phone(post.Text),
			Link:     post.Link,
			Excerpt:  candidates[0].Span,
			Value:    candidates[0].Value,
			Qty:      largestQuantity(post.Text),
			Location: detectLocation(post.Text, hubs),
		}

		out = append(out, sample)
	}

	return out, nil
}

func largestQuantity(text string) float64 {
	var qty float64

	for v := range extract.Quantities(text) {
		qty = max(qty, v)
	}

	return qty
}

// hubKeywords returns the hub names in deterministic order
func hubKeywords(hubs map[string]float64) []string {
	out := make([]string, 0, len(hubs))

	for name := range hubs {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

func detectLocation(text string, hubs []string) string {
	for _, hub := range hubs {
		if farsi.ContainsAny(text, []string{hub}) {
			return hub
		}
	}

	return ""
}
