// Package combine blends per-source price samples into one consensus
// delta against a configured anchor, smoothing each source with its own
// exponentially weighted moving average across runs.
package combine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/iranianx/rate/storage/types"
)

// Alpha is the EWMA smoothing factor: an effective ~60 minute window
// sampled at ~10 minute intervals gives N=6 periods, alpha = 2/(N+1)
const Alpha = 2.0 / 7.0

// Entry is the persisted smoothing state for one (kind, source) pair
type Entry struct {
	TS   time.Time `json:"ts"`
	Ewma float64   `json:"ewma"`
}

// State maps "<kind>:<source>" to its smoothing entry
type State map[string]Entry

// StateKey builds the state map key for a (kind, source) pair
func StateKey(kind types.Kind, source types.Source) string {
	return fmt.Sprintf("%s:%s", kind, source)
}

// LoadState reads the EWMA state file. A missing file yields an empty
// state, since every first run starts from nothing.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, nil
		}

		return nil, fmt.Errorf("unable to read state file: %w", err)
	}

	var st State

	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unable to parse state file: %w", err)
	}

	if st == nil {
		st = State{}
	}

	return st, nil
}

// Save fully rewrites the state file
func (s State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal state: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("unable to write state file: %w", err)
	}

	return nil
}
