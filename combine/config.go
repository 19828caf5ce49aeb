package combine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var ErrMissingAnchor = errors.New("missing baseline anchor")

// Thresholds are the combiner tunables. Zero fields fall back to the
// defaults on load.
type Thresholds struct {
	// TTLMinutes bounds sample age before the availability fallback kicks in
	TTLMinutes float64 `json:"ttl_minutes"`

	// MarketMinMedian is the median |delta| at which the market counts
	// as moving, in percent
	MarketMinMedian float64 `json:"market_min_median"`

	// FlatCutAbsPct drops sources flatter than this while the market moves
	FlatCutAbsPct float64 `json:"flat_cut_abs_pct"`

	// HalfWeightGapPct halves the weight of sources this far from the median
	HalfWeightGapPct float64 `json:"half_weight_gap_pct"`

	// DropGapPct excludes sources this far from the median outright
	DropGapPct float64 `json:"drop_gap_pct"`
}

// DefaultThresholds returns the combiner defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		TTLMinutes:       45,
		MarketMinMedian:  0.15,
		FlatCutAbsPct:    0.02,
		HalfWeightGapPct: 5,
		DropGapPct:       10,
	}
}

// LoadThresholds reads the thresholds config file, filling absent fields
// with defaults. A missing file yields the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	defaults := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults, nil
		}

		return Thresholds{}, fmt.Errorf("unable to read thresholds file: %w", err)
	}

	th := defaults

	if err := json.Unmarshal(data, &th); err != nil {
		return Thresholds{}, fmt.Errorf("unable to parse thresholds file: %w", err)
	}

	if th.TTLMinutes <= 0 {
		th.TTLMinutes = defaults.TTLMinutes
	}

	if th.MarketMinMedian <= 0 {
		th.MarketMinMedian = defaults.MarketMinMedian
	}

	if th.FlatCutAbsPct <= 0 {
		th.FlatCutAbsPct = defaults.FlatCutAbsPct
	}

	if th.HalfWeightGapPct <= 0 {
		th.HalfWeightGapPct = defaults.HalfWeightGapPct
	}

	if th.DropGapPct <= 0 {
		th.DropGapPct = defaults.DropGapPct
	}

	return th, nil
}

// Anchor is the configured baseline for one currency code
type Anchor struct {
	Anchor    float64 `json:"anchor"`
	OffsetPct float64 `json:"offset_pct"`
}

// Baseline holds the per-currency anchors plus the list of spot symbols
// to derive each run
type Baseline struct {
	Anchors map[string]Anchor
	Symbols []string
}

// Anchor fetches the anchor for a currency code. There is no sensible
// default anchor, so a missing one is a config-level error.
func (b Baseline) Anchor(code string) (Anchor, error) {
	anchor, ok := b.Anchors[code]
	if !ok || anchor.Anchor <= 0 {
		return Anchor{}, fmt.Errorf("%w: %s", ErrMissingAnchor, code)
	}

	return anchor, nil
}

// LoadBaseline reads the baseline config file. The file maps currency
// codes to anchors, with the reserved "symbols_fx" key listing the spot
// symbols to derive.
func LoadBaseline(path string) (Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Baseline{}, fmt.Errorf("unable to read baseline file: %w", err)
	}

	var raw map[string]json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return Baseline{}, fmt.Errorf("unable to parse baseline file: %w", err)
	}

	b := Baseline{
		Anchors: make(map[string]Anchor, len(raw)),
	}

	for code, msg := range raw {
		if code == "symbols_fx" {
			if err := json.Unmarshal(msg, &b.Symbols); err != nil {
				return Baseline{}, fmt.Errorf("unable to parse symbols_fx: %w", err)
			}

			continue
		}

		var anchor Anchor

		if err := json.Unmarshal(msg, &anchor); err != nil {
			return Baseline{}, fmt.Errorf("unable to parse anchor %s: %w", code, err)
		}

		b.Anchors[code] = anchor
	}

	return b, nil
}
